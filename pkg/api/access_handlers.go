package api

import (
	"net/http"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/httputil"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/middleware"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
)

// accessCheck answers "may user X perform operation Y on this subaccount".
// Callers may check themselves; checking another user requires a bypassing
// global role, which is how sibling services (fronted by the gateway with a
// service identity) use it.
func (s *Server) accessCheck(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	var req accessCheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Operation, "operation") {
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = identity.UserID
	}
	if userID != identity.UserID && !identity.GlobalRole.Bypasses() {
		httputil.WriteForbidden(w, "cannot check access for another user")
		return
	}

	subaccountID := httputil.PathVar(r, "subaccountID")

	var (
		decision interface{}
		err      error
	)
	if req.Collection != "" {
		decision, err = s.resolver.ResolveCollection(r.Context(), userID, subaccountID, req.Collection, req.Operation)
	} else {
		decision, err = s.resolver.Resolve(r.Context(), userID, subaccountID, req.Operation)
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("access check failed")
		httputil.WriteInternalError(w, "authorization unavailable")
		return
	}
	httputil.WriteSuccess(w, decision)
}
