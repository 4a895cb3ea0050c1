package api

import (
	"errors"
	"net/http"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/httputil"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/middleware"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/subaccounts"
)

func (s *Server) createSubaccount(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	var req createSubaccountRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	sub, err := s.service.CreateSubaccount(r.Context(), req.ID, req.Name, identity.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, sub)
}

func (s *Server) listSubaccounts(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	subs, err := s.service.ListForUser(r.Context(), identity.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if subs == nil {
		subs = []*access.Subaccount{}
	}
	httputil.WriteSuccess(w, subs)
}

func (s *Server) getSubaccount(w http.ResponseWriter, r *http.Request) {
	sub, err := s.service.GetSubaccount(r.Context(), httputil.PathVar(r, "subaccountID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

func (s *Server) renameSubaccount(w http.ResponseWriter, r *http.Request) {
	var req renameSubaccountRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	subaccountID := httputil.PathVar(r, "subaccountID")
	if err := s.service.RenameSubaccount(r.Context(), subaccountID, req.Name); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.getSubaccount(w, r)
}

func (s *Server) deleteSubaccount(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSubaccount(r.Context(), httputil.PathVar(r, "subaccountID")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) setMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	subaccountID := httputil.PathVar(r, "subaccountID")
	if err := s.service.SetMaintenanceMode(r.Context(), subaccountID, req.Enabled); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"subaccount_id": subaccountID,
		"maintenance":   req.Enabled,
	})
}

func (s *Server) activateSubaccount(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, true)
}

func (s *Server) deactivateSubaccount(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, false)
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	subaccountID := httputil.PathVar(r, "subaccountID")
	if err := s.service.SetActive(r.Context(), subaccountID, active); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"subaccount_id": subaccountID,
		"is_active":     active,
	})
}

// writeServiceError maps service errors onto the response contract. Unmapped
// errors are 500 and never leak their message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrNotFound):
		httputil.WriteNotFound(w, "not found")
	case errors.Is(err, subaccounts.ErrInvalidRole):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, subaccounts.ErrInvitationExpired):
		httputil.WriteErrorMessage(w, http.StatusGone, err.Error())
	case errors.Is(err, subaccounts.ErrInvitationUsed):
		httputil.WriteConflict(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
		httputil.WriteInternalError(w, "internal server error")
	}
}
