package auth

// HasPermission decides whether user may perform operation on resource.
//
// The decision is pure and total: a nil or unavailable user is always denied,
// a master user is always allowed, and everyone else is allowed only when the
// permission map grants the operation (or the wildcard) for that resource.
// Unknown resource or operation names simply evaluate to false.
func HasPermission(user *User, resource, operation string) bool {
	if user == nil || !user.Available {
		return false
	}
	if user.Role == RoleMaster {
		return true
	}
	ops, ok := user.Permissions[resource]
	if !ok {
		return false
	}
	for _, op := range ops {
		if op == operation || op == OpAll {
			return true
		}
	}
	return false
}
