package api

import (
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

type createSubaccountRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type renameSubaccountRequest struct {
	Name string `json:"name"`
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

type createInvitationRequest struct {
	UserID    string           `json:"user_id"`
	Role      permissions.Role `json:"role"`
	Overrides *permissions.Set `json:"overrides,omitempty"`
}

type invitationResponse struct {
	Token        string           `json:"token"`
	SubaccountID string           `json:"subaccount_id"`
	UserID       string           `json:"user_id"`
	Role         permissions.Role `json:"role"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

type changeRoleRequest struct {
	Role      permissions.Role `json:"role"`
	Overrides *permissions.Set `json:"overrides,omitempty"`
}

type updatePermissionsRequest struct {
	Overrides   permissions.Set                  `json:"overrides"`
	Collections []permissions.CollectionOverride `json:"collections,omitempty"`
}

type temporaryAccessRequest struct {
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason,omitempty"`
}

type accessCheckRequest struct {
	UserID     string `json:"user_id,omitempty"`
	Operation  string `json:"operation"`
	Collection string `json:"collection,omitempty"`
}
