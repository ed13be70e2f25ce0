package service

import (
	"errors"

	"github.com/google/uuid"

	"github.com/voltmart/commerce-api/internal/model"
)

var (
	// ErrAccessDenied means the acting user is neither the resource owner
	// nor an admin.
	ErrAccessDenied = errors.New("access denied")
	// ErrAdminOnly means the operation requires the admin role.
	ErrAdminOnly = errors.New("admin role required")
)

// authorizeOwnerOrAdmin is the single ownership policy: admins may act on
// any resource, everyone else only on their own.
func authorizeOwnerOrAdmin(actingUserID uuid.UUID, actingRole string, ownerID uuid.UUID) error {
	if actingRole == model.RoleAdmin {
		return nil
	}
	if actingUserID == ownerID {
		return nil
	}
	return ErrAccessDenied
}

func authorizeAdmin(actingRole string) error {
	if actingRole != model.RoleAdmin {
		return ErrAdminOnly
	}
	return nil
}
