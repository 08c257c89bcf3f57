package registry

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

type CreateTenantRequest struct {
	Name string          `json:"name" validate:"required,max=128"`
	Info json.RawMessage `json:"info,omitempty"`
}

type CreateBranchRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

// CreateTenant registers a tenant and its first branch. The first branch is
// named "main" and becomes the tenant's default; its schema is created
// lazily on first use.
func CreateTenant(ctx context.Context, req *CreateTenantRequest) (*TenantDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	d := db.DB(ctx)

	tenant := &models.Tenant{
		Name: req.Name,
		Info: jsonbFrom(req.Info),
	}
	if err := d.CreateTenant(ctx, tenant); err != nil {
		return nil, mapDbError(err, ErrTenantNotFound)
	}
	branch := &models.Branch{
		TenantID:  tenant.TenantID,
		Name:      mhcommon.DefaultBranchName,
		IsDefault: true,
	}
	if err := d.CreateBranch(ctx, branch); err != nil {
		return nil, mapDbError(err, ErrTenantNotFound)
	}
	log.Ctx(ctx).Info().
		Str("tenant_id", tenant.TenantID.String()).
		Str("branch_id", branch.BranchID.String()).
		Msg("created tenant with default branch")
	return tenantDTO(tenant), nil
}

// GetTenant retrieves a tenant by id.
func GetTenant(ctx context.Context, tenantID uuid.UUID) (*TenantDTO, apperrors.Error) {
	tenant, err := db.DB(ctx).GetTenant(ctx, tenantID)
	if err != nil {
		return nil, mapDbError(err, ErrTenantNotFound)
	}
	return tenantDTO(tenant), nil
}

// DeleteTenant drops every branch schema belonging to the tenant and then
// removes the tenant row. The schemas go first so a retry after a partial
// failure still finds the tenant's branch list.
func DeleteTenant(ctx context.Context, tenantID uuid.UUID) apperrors.Error {
	if err := DropTenantSchemas(ctx, tenantID); err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).DeleteTenant(ctx, tenantID), ErrTenantNotFound)
}

// CreateBranch adds a branch to the tenant in context. The branch starts
// empty; its schema is created on first use.
func CreateBranch(ctx context.Context, req *CreateBranchRequest) (*BranchDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	tenantID := mhcommon.TenantIdFromContext(ctx)
	if tenantID == uuid.Nil {
		return nil, ErrInvalidRequest.Msg("no tenant in request context")
	}

	branch := &models.Branch{
		TenantID: tenantID,
		Name:     req.Name,
	}
	if err := db.DB(ctx).CreateBranch(ctx, branch); err != nil {
		return nil, mapDbError(err, ErrTenantNotFound)
	}
	return branchDTO(branch), nil
}

// GetBranch retrieves a branch of the tenant in context.
func GetBranch(ctx context.Context, branchID uuid.UUID) (*BranchDTO, apperrors.Error) {
	tenantID := mhcommon.TenantIdFromContext(ctx)
	if tenantID == uuid.Nil {
		return nil, ErrInvalidRequest.Msg("no tenant in request context")
	}
	branch, err := db.DB(ctx).GetBranch(ctx, branchID)
	if err != nil {
		return nil, mapDbError(err, ErrBranchNotFound)
	}
	if branch.TenantID != tenantID {
		return nil, ErrBranchNotFound
	}
	return branchDTO(branch), nil
}

// ListBranches returns the tenant's branches.
func ListBranches(ctx context.Context) ([]*BranchDTO, apperrors.Error) {
	tenantID := mhcommon.TenantIdFromContext(ctx)
	if tenantID == uuid.Nil {
		return nil, ErrInvalidRequest.Msg("no tenant in request context")
	}
	branches, err := db.DB(ctx).ListBranches(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	dtos := make([]*BranchDTO, 0, len(branches))
	for _, b := range branches {
		dtos = append(dtos, branchDTO(b))
	}
	return dtos, nil
}

// SetDefaultBranch moves the tenant's default flag to the given branch.
// Users without a personal active branch start resolving to it on their
// next request once the cached entry expires.
func SetDefaultBranch(ctx context.Context, branchID uuid.UUID) apperrors.Error {
	tenantID := mhcommon.TenantIdFromContext(ctx)
	if tenantID == uuid.Nil {
		return ErrInvalidRequest.Msg("no tenant in request context")
	}
	d := db.DB(ctx)

	branch, err := d.GetBranch(ctx, branchID)
	if err != nil {
		return mapDbError(err, ErrBranchNotFound)
	}
	if branch.TenantID != tenantID {
		return ErrBranchNotFound
	}
	return mapDbError(d.SetDefaultBranch(ctx, tenantID, branchID), ErrBranchNotFound)
}
