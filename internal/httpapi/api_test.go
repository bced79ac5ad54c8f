package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/core"
)

type fixture struct {
	t        *testing.T
	store    *memStore
	provider *memProvider
	trail    *memAuditStore
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	provider := newMemProvider()
	trail := &memAuditStore{}
	svc, err := core.NewService(store, provider, audit.NewLogger(trail))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(svc, provider, ReadyProbe{}, Limits{RateBurst: 1000, RatePerSecond: 1000}, "test")
	return &fixture{
		t:        t,
		store:    store,
		provider: provider,
		trail:    trail,
		handler:  api.Handler(),
	}
}

// addUser seeds a user record plus matching credentials. The bearer token for
// the account is "token-<uid>".
func (f *fixture) addUser(uid, email string, role auth.Role, perms auth.Permissions, available bool) {
	f.t.Helper()
	f.provider.register(email, "secret", uid)
	f.store.users[uid] = &auth.User{
		ID:          uid,
		Email:       email,
		UserName:    strings.SplitN(email, "@", 2)[0],
		Role:        role,
		Available:   available,
		Permissions: perms,
	}
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.addUser("uid-ana", "ana@snacks.dev", auth.RoleEditor, auth.Permissions{"products": {"read", "write"}}, true)

	rec := f.do(http.MethodPost, "/v1/auth/login", "", `{"email":"ana@snacks.dev","password":"secret","device":"laptop"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["token"] != "token-uid-ana" {
		t.Fatalf("token = %v", body["token"])
	}
	if body["session"] == nil {
		t.Fatal("expected session in response")
	}

	rec = f.do(http.MethodPost, "/v1/auth/login", "", `{"email":"ana@snacks.dev","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", rec.Code)
	}
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/auth/login", "", `{"email":"a@b.c","password":"x","bogus":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCheckPermissionFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.addUser("uid-ana", "ana@snacks.dev", auth.RoleEditor, auth.Permissions{"products": {"read"}}, true)

	cases := []struct {
		name  string
		token string
		body  string
		want  bool
	}{
		{"anonymous", "", `{"resource":"products","operation":"read"}`, false},
		{"garbage token", "nonsense", `{"resource":"products","operation":"read"}`, false},
		{"granted", "token-uid-ana", `{"resource":"products","operation":"read"}`, true},
		{"not granted", "token-uid-ana", `{"resource":"products","operation":"delete"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/v1/permissions/check", tc.token, tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := decodeBody(t, rec)["hasPermission"]; got != tc.want {
				t.Fatalf("hasPermission = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateAccess(t *testing.T) {
	f := newFixture(t)
	f.addUser("uid-ana", "ana@snacks.dev", auth.RoleEditor, auth.Permissions{"products": {"read"}}, true)

	rec := f.do(http.MethodGet, "/v1/access/validate?resource=products&operation=read", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/access/validate?resource=products", "token-uid-ana", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing operation status = %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/access/validate?resource=orders&operation=write", "token-uid-ana", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("denied status = %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/access/validate?resource=products&operation=read&resourceId=sku-1", "token-uid-ana", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("granted status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["hasAccess"]; got != true {
		t.Fatalf("hasAccess = %v", got)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addUser("uid-ana", "ana@snacks.dev", auth.RoleEditor, nil, true)

	rec := f.do(http.MethodPost, "/v1/auth/login", "", `{"email":"ana@snacks.dev","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	session := decodeBody(t, rec)["session"].(map[string]any)
	sid := session["id"].(string)

	for i := 0; i < 2; i++ {
		rec = f.do(http.MethodPost, "/v1/auth/logout", "token-uid-ana", `{"session_id":"`+sid+`"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("logout attempt %d status = %d", i+1, rec.Code)
		}
	}
	if s := f.store.sessions[sid]; s.Active {
		t.Fatal("session still active after logout")
	}

	rec = f.do(http.MethodPost, "/v1/auth/logout", "", `{"session_id":"`+sid+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous logout status = %d", rec.Code)
	}
}

func TestEndAllSessions(t *testing.T) {
	f := newFixture(t)
	f.addUser("uid-ana", "ana@snacks.dev", auth.RoleEditor, nil, true)
	f.addUser("uid-root", "root@snacks.dev", auth.RoleMaster, nil, true)
	for i := 0; i < 3; i++ {
		rec := f.do(http.MethodPost, "/v1/auth/login", "", `{"email":"ana@snacks.dev","password":"secret"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("login %d status = %d", i, rec.Code)
		}
	}

	// another editor cannot close ana's sessions
	f.addUser("uid-bob", "bob@snacks.dev", auth.RoleEditor, nil, true)
	rec := f.do(http.MethodPost, "/v1/sessions/end-all", "token-uid-bob", `{"user_id":"uid-ana"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign close status = %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/v1/sessions/end-all", "token-uid-root", `{"user_id":"uid-ana","reason":"incident"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("master close status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(3) {
		t.Fatalf("count = %v, want 3", body["count"])
	}
}

func TestInitializeSystem(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/system/initialize", "", `{"email":"owner@snacks.dev","password":"pw","full_name":"Owner","user_name":"owner","whatsapp":"+5511999999999"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	uid, _ := decodeBody(t, rec)["uid"].(string)
	if uid == "" {
		t.Fatal("expected uid in response")
	}
	if u := f.store.users[uid]; u == nil || u.Role != auth.RoleMaster {
		t.Fatalf("bootstrap user = %+v", f.store.users[uid])
	}

	rec = f.do(http.MethodPost, "/v1/system/initialize", "", `{"email":"other@snacks.dev","password":"pw","full_name":"Other","user_name":"other","whatsapp":"+5511888888888"}`)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("second initialize status = %d", rec.Code)
	}
}

func TestActivityEndpoint(t *testing.T) {
	f := newFixture(t)
	f.addUser("uid-ana", "ana@snacks.dev", auth.RoleEditor, nil, true)

	rec := f.do(http.MethodPost, "/v1/activity", "token-uid-ana", `{"action":"export_csv","resource":"orders"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	found := false
	for _, e := range f.trail.entries {
		if e.Action == "export_csv" && e.UserID == "uid-ana" {
			found = true
		}
	}
	if !found {
		t.Fatal("activity entry not recorded")
	}

	rec = f.do(http.MethodPost, "/v1/activity", "token-uid-ana", `{"action":"","resource":"orders"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing action status = %d", rec.Code)
	}
}

func TestUserRoutes(t *testing.T) {
	f := newFixture(t)
	f.addUser("uid-root", "root@snacks.dev", auth.RoleMaster, nil, true)
	f.addUser("uid-ana", "ana@snacks.dev", auth.RoleViewer, nil, true)

	rec := f.do(http.MethodPost, "/v1/users", "token-uid-ana", `{"email":"new@snacks.dev","password":"pw","user_name":"new"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer create status = %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/v1/users", "token-uid-root", `{"email":"new@snacks.dev","password":"pw","user_name":"new","role":"editor","permissions":{"products":["read","write"]}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("master create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	newID, _ := created["id"].(string)
	if newID == "" {
		t.Fatal("expected created user id")
	}

	rec = f.do(http.MethodGet, "/v1/users/"+newID, "token-uid-root", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// viewers may still read their own record
	rec = f.do(http.MethodGet, "/v1/users/uid-ana", "token-uid-ana", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("self get status = %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/v1/users/uid-root", "token-uid-ana", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign get status = %d", rec.Code)
	}

	rec = f.do(http.MethodPatch, "/v1/users/"+newID, "token-uid-root", `{"full_name":"Renamed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["full_name"]; got != "Renamed" {
		t.Fatalf("full_name = %v", got)
	}

	rec = f.do(http.MethodGet, "/v1/users/"+newID+"/sessions", "token-uid-root", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sessions status = %d", rec.Code)
	}

	rec = f.do(http.MethodDelete, "/v1/users/"+newID, "token-uid-root", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestAuditEndpoint(t *testing.T) {
	f := newFixture(t)
	f.addUser("uid-root", "root@snacks.dev", auth.RoleMaster, nil, true)
	f.addUser("uid-ana", "ana@snacks.dev", auth.RoleViewer, nil, true)

	rec := f.do(http.MethodPost, "/v1/auth/login", "", `{"email":"ana@snacks.dev","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/audit", "token-uid-ana", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer audit status = %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/audit?user_id=uid-ana", "token-uid-root", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d, body %s", rec.Code, rec.Body.String())
	}
	entries, _ := decodeBody(t, rec)["entries"].([]any)
	if len(entries) == 0 {
		t.Fatal("expected audit entries for the login")
	}

	rec = f.do(http.MethodGet, "/v1/audit?severity=sideways", "token-uid-root", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad severity status = %d", rec.Code)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/v1/info", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-Id"); got == "" {
		t.Fatal("missing X-Request-Id header")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}

	rec = f.do(http.MethodGet, "/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d", rec.Code)
	}
}
