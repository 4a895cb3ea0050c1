package api

import (
	"net/http"
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/httputil"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/middleware"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.service.ListMembers(r.Context(), httputil.PathVar(r, "subaccountID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if members == nil {
		members = []*permissions.Membership{}
	}
	httputil.WriteSuccess(w, members)
}

func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	var req createInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	subaccountID := httputil.PathVar(r, "subaccountID")
	inv, err := s.service.Invite(r.Context(), subaccountID, req.UserID, req.Role, req.Overrides, identity.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, invitationResponse{
		Token:        inv.Token,
		SubaccountID: inv.SubaccountID,
		UserID:       inv.UserID,
		Role:         inv.Role,
		ExpiresAt:    inv.ExpiresAt,
	})
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	token, ok := httputil.PathVarOrError(w, r, "token")
	if !ok {
		return
	}

	m, err := s.service.AcceptInvitation(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) changeMemberRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	subaccountID := httputil.PathVar(r, "subaccountID")
	userID := httputil.PathVar(r, "userID")
	if err := s.service.ChangeRole(r.Context(), userID, subaccountID, req.Role, req.Overrides); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{
		"user_id":       userID,
		"subaccount_id": subaccountID,
		"role":          string(req.Role),
	})
}

func (s *Server) updateMemberPermissions(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	subaccountID := httputil.PathVar(r, "subaccountID")
	userID := httputil.PathVar(r, "userID")
	if err := s.service.UpdatePermissions(r.Context(), userID, subaccountID, req.Overrides, req.Collections); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) grantTemporaryAccess(w http.ResponseWriter, r *http.Request) {
	var req temporaryAccessRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.ExpiresAt.After(time.Now()) {
		httputil.WriteBadRequest(w, "expires_at must be in the future")
		return
	}

	subaccountID := httputil.PathVar(r, "subaccountID")
	userID := httputil.PathVar(r, "userID")
	if err := s.service.GrantTemporaryAccess(r.Context(), userID, subaccountID, req.ExpiresAt, req.Reason); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":       userID,
		"subaccount_id": subaccountID,
		"expires_at":    req.ExpiresAt,
	})
}

func (s *Server) revokeTemporaryAccess(w http.ResponseWriter, r *http.Request) {
	subaccountID := httputil.PathVar(r, "subaccountID")
	userID := httputil.PathVar(r, "userID")
	if err := s.service.RevokeTemporaryAccess(r.Context(), userID, subaccountID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	subaccountID := httputil.PathVar(r, "subaccountID")
	userID := httputil.PathVar(r, "userID")
	if err := s.service.RemoveMember(r.Context(), userID, subaccountID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
