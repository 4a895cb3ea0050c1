package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/directory"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/middleware"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/subaccounts"
)

// noopCache satisfies subaccounts.Cache for handler tests; invalidation
// behavior has its own suite in pkg/subaccounts
type noopCache struct{}

func (noopCache) Invalidate(context.Context, string, string) error            { return nil }
func (noopCache) InvalidateAllForUser(context.Context, string) error          { return nil }
func (noopCache) InvalidateAllForSubaccount(context.Context, string) error    { return nil }
func (noopCache) GetJSON(context.Context, string, interface{}) bool           { return false }
func (noopCache) SetJSON(context.Context, string, interface{}, time.Duration) {}

func newTestServer(t *testing.T) (*Server, *directory.MemoryStore) {
	t.Helper()
	store := directory.NewMemoryStore()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	service := subaccounts.NewService(store, noopCache{}, logger)

	server := NewServer(Options{
		Service:  service,
		Resolver: access.NewResolver(store),
		Health:   observability.NewHealthChecker(nil, nil),
		Logger:   logger,
	})
	return server, store
}

func doJSON(t *testing.T, server *Server, method, path, userID, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func seedUser(store *directory.MemoryStore, userID string) {
	store.PutUser(&access.User{ID: userID, GlobalRole: permissions.GlobalRoleUser, IsActive: true})
}

func TestCreateSubaccountMakesCallerOwner(t *testing.T) {
	server, store := newTestServer(t)
	seedUser(store, "alice")

	rec := doJSON(t, server, "POST", "/api/v1/subaccounts", "alice", "", `{"name":"prod"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	var sub access.Subaccount
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatalf("response: %v", err)
	}
	if sub.ID == "" || sub.Name != "prod" || !sub.IsActive {
		t.Errorf("subaccount = %+v", sub)
	}

	m, err := store.GetMembership(context.Background(), "alice", sub.ID)
	if err != nil {
		t.Fatalf("owner membership missing: %v", err)
	}
	if m.Role != permissions.RoleOwner {
		t.Errorf("owner role = %s", m.Role)
	}

	// The owner can read it back through the authorized route
	rec = doJSON(t, server, "GET", "/api/v1/subaccounts/"+sub.ID, "alice", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("owner get: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubaccountRoutesRequireIdentity(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doJSON(t, server, "GET", "/api/v1/subaccounts", "", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing identity: %d", rec.Code)
	}
}

func TestNonMemberIsDeniedWithFixedReason(t *testing.T) {
	server, store := newTestServer(t)
	seedUser(store, "alice")
	seedUser(store, "mallory")

	rec := doJSON(t, server, "POST", "/api/v1/subaccounts", "alice", "", `{"name":"prod"}`)
	var sub access.Subaccount
	json.Unmarshal(rec.Body.Bytes(), &sub)

	rec = doJSON(t, server, "GET", "/api/v1/subaccounts/"+sub.ID, "mallory", "", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-member get: %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("denial body: %v", err)
	}
	if body["reason"] != access.ReasonNotAssociated {
		t.Errorf("reason = %q", body["reason"])
	}
}

func TestInviteAcceptFlow(t *testing.T) {
	server, store := newTestServer(t)
	seedUser(store, "alice")
	seedUser(store, "bob")

	rec := doJSON(t, server, "POST", "/api/v1/subaccounts", "alice", "", `{"name":"prod"}`)
	var sub access.Subaccount
	json.Unmarshal(rec.Body.Bytes(), &sub)

	rec = doJSON(t, server, "POST", "/api/v1/subaccounts/"+sub.ID+"/invitations", "alice", "",
		`{"user_id":"bob","role":"editor"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("invite: %d %s", rec.Code, rec.Body.String())
	}
	var inv invitationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &inv); err != nil {
		t.Fatalf("invitation body: %v", err)
	}
	if inv.Token == "" {
		t.Fatal("invitation token missing")
	}

	rec = doJSON(t, server, "POST", "/api/v1/invitations/"+inv.Token+"/accept", "bob", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rec.Code, rec.Body.String())
	}

	// Bob can now read the subaccount
	rec = doJSON(t, server, "GET", "/api/v1/subaccounts/"+sub.ID, "bob", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("member get: %d", rec.Code)
	}

	// Second redemption conflicts
	rec = doJSON(t, server, "POST", "/api/v1/invitations/"+inv.Token+"/accept", "bob", "", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("reused token: %d", rec.Code)
	}

	// But an editor cannot manage members
	rec = doJSON(t, server, "DELETE", fmt.Sprintf("/api/v1/subaccounts/%s/members/%s", sub.ID, "alice"), "bob", "", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("editor manage: %d", rec.Code)
	}
}

func TestMaintenanceModeLocksOutMembers(t *testing.T) {
	server, store := newTestServer(t)
	seedUser(store, "alice")
	seedUser(store, "bob")

	rec := doJSON(t, server, "POST", "/api/v1/subaccounts", "alice", "", `{"name":"prod"}`)
	var sub access.Subaccount
	json.Unmarshal(rec.Body.Bytes(), &sub)

	rec = doJSON(t, server, "POST", "/api/v1/subaccounts/"+sub.ID+"/invitations", "alice", "",
		`{"user_id":"bob","role":"viewer"}`)
	var inv invitationResponse
	json.Unmarshal(rec.Body.Bytes(), &inv)
	doJSON(t, server, "POST", "/api/v1/invitations/"+inv.Token+"/accept", "bob", "", "")

	rec = doJSON(t, server, "POST", "/api/v1/subaccounts/"+sub.ID+"/maintenance", "alice", "", `{"enabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("maintenance on: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, "GET", "/api/v1/subaccounts/"+sub.ID, "bob", "", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer during maintenance: %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["reason"] != access.ReasonMaintenanceMode {
		t.Errorf("reason = %q", body["reason"])
	}

	// Owners are exempt
	rec = doJSON(t, server, "GET", "/api/v1/subaccounts/"+sub.ID, "alice", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("owner during maintenance: %d", rec.Code)
	}
}

func TestAccessCheckEndpoint(t *testing.T) {
	server, store := newTestServer(t)
	seedUser(store, "alice")
	seedUser(store, "bob")

	rec := doJSON(t, server, "POST", "/api/v1/subaccounts", "alice", "", `{"name":"prod"}`)
	var sub access.Subaccount
	json.Unmarshal(rec.Body.Bytes(), &sub)

	t.Run("self check", func(t *testing.T) {
		rec := doJSON(t, server, "POST", "/api/v1/subaccounts/"+sub.ID+"/access-check", "bob", "",
			`{"operation":"find"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
		}
		var decision access.Decision
		if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
			t.Fatalf("decision body: %v", err)
		}
		if decision.Allowed || decision.Reason != access.ReasonNotAssociated {
			t.Errorf("decision = %+v", decision)
		}
	})

	t.Run("cross-user check requires bypassing role", func(t *testing.T) {
		rec := doJSON(t, server, "POST", "/api/v1/subaccounts/"+sub.ID+"/access-check", "bob", "",
			`{"user_id":"alice","operation":"find"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("plain user cross-check: %d", rec.Code)
		}

		rec = doJSON(t, server, "POST", "/api/v1/subaccounts/"+sub.ID+"/access-check", "svc", "super_admin",
			`{"user_id":"alice","operation":"manage"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("service cross-check: %d %s", rec.Code, rec.Body.String())
		}
		var decision access.Decision
		json.Unmarshal(rec.Body.Bytes(), &decision)
		if !decision.Allowed {
			t.Errorf("owner should be allowed to manage: %+v", decision)
		}
	})
}

func TestHealthAndMetricsAreUnauthenticated(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := doJSON(t, server, "GET", path, "", "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: %d", path, rec.Code)
		}
	}
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	server, store := newTestServer(t)
	seedUser(store, "alice")

	rec := doJSON(t, server, "POST", "/api/v1/subaccounts", "alice", "", `{broken`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: %d", rec.Code)
	}

	rec = doJSON(t, server, "POST", "/api/v1/subaccounts", "alice", "", `{"name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty name: %d", rec.Code)
	}
}

func TestRequestIDPropagatedToResponse(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("request id = %q", got)
	}
}
