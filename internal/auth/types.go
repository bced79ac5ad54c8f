package auth

import "time"

// Role is the coarse access tier of a user account.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
	// RoleMaster bypasses the permission map entirely.
	RoleMaster Role = "master"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin, RoleMaster:
		return true
	}
	return false
}

// Operation tokens accepted in permission sets.
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpDelete = "delete"
	// OpAll is a wildcard granting every operation on its resource.
	OpAll = "all"
)

// Resources managed by the back office. Permission maps are keyed by these
// names; "users" is the canonical key for account administration.
const (
	ResourceUsers       = "users"
	ResourceProducts    = "products"
	ResourceCategories  = "categories"
	ResourceIngredients = "ingredients"
	ResourceAllergens   = "allergens"
	ResourceOrders      = "orders"
	ResourceSettings    = "settings"
	ResourceAudit       = "audit"
	ResourceSessions    = "sessions"
)

// KnownResources lists every resource a permission map may reference.
var KnownResources = []string{
	ResourceUsers,
	ResourceProducts,
	ResourceCategories,
	ResourceIngredients,
	ResourceAllergens,
	ResourceOrders,
	ResourceSettings,
	ResourceAudit,
	ResourceSessions,
}

// Permissions maps a resource name to the operations granted on it.
type Permissions map[string][]string

// FullPermissions grants the wildcard on every known resource. Used for the
// bootstrap master account.
func FullPermissions() Permissions {
	p := make(Permissions, len(KnownResources))
	for _, r := range KnownResources {
		p[r] = []string{OpAll}
	}
	return p
}

// User is an administrative account. The ID is the identity issued by the
// authentication provider.
type User struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	UserName    string      `json:"user_name"`
	FullName    string      `json:"full_name"`
	Role        Role        `json:"role"`
	Available   bool        `json:"available"`
	Permissions Permissions `json:"permissions"`
	ReleaseDate *time.Time  `json:"release_date,omitempty"`
	WhatsApp    string      `json:"whatsapp,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CreatedBy   string      `json:"created_by,omitempty"`
	UpdatedBy   string      `json:"updated_by,omitempty"`
}

// Session records one login on one device. Sessions transition active -> closed
// exactly once and are never reopened.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Active    bool       `json:"active"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
	Device    string     `json:"device,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	IPAddress string     `json:"ip_address,omitempty"`
	Location  string     `json:"location,omitempty"`
}

// NotificationSettings is the per-user notification preference record created
// at bootstrap and kept alongside the account.
type NotificationSettings struct {
	UserID         string    `json:"user_id"`
	EmailEnabled   bool      `json:"email_enabled"`
	WhatsAppNumber string    `json:"whatsapp_number,omitempty"`
	OrderAlerts    bool      `json:"order_alerts"`
	StockAlerts    bool      `json:"stock_alerts"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserUpdate is the allow-list of mutable user fields. Nil fields are left
// untouched; write paths never accept arbitrary field names.
type UserUpdate struct {
	Email            *string
	UserName         *string
	FullName         *string
	Role             *Role
	Available        *bool
	Permissions      *Permissions
	ReleaseDate      *time.Time
	ClearReleaseDate bool
	WhatsApp         *string
	Phone            *string
}
