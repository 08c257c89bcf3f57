package postgresql

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
)

// publicTableDDL creates the shared tables that live outside tenant schemas.
var publicTableDDL = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
	tenant_id uuid PRIMARY KEY,
	name varchar(128) NOT NULL,
	info jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tenants_name_key ON tenants (name);`,
	`CREATE TABLE IF NOT EXISTS branches (
	branch_id uuid PRIMARY KEY,
	tenant_id uuid NOT NULL REFERENCES tenants(tenant_id) ON DELETE CASCADE,
	name varchar(128) NOT NULL,
	schema_name varchar(64) NOT NULL UNIQUE,
	is_default boolean NOT NULL DEFAULT false,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, name)
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS branches_tenant_default_key ON branches (tenant_id) WHERE is_default;`,
	`CREATE TABLE IF NOT EXISTS tenant_memberships (
	tenant_id uuid NOT NULL REFERENCES tenants(tenant_id) ON DELETE CASCADE,
	user_id uuid NOT NULL,
	active_branch_id uuid REFERENCES branches(branch_id) ON DELETE SET NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, user_id)
);`,
}

// EnsurePublicTables creates the public-schema tables if absent. Idempotent;
// run at startup.
func (tm *tenantManager) EnsurePublicTables(ctx context.Context) apperrors.Error {
	for _, stmt := range publicTableDDL {
		if _, err := tm.conn().ExecContext(ctx, stmt); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to create public tables")
			return dberror.ErrDatabase.MsgErr("failed to create public tables", err)
		}
	}
	return nil
}

// CreateTenant creates a new tenant. Returns ErrUniqueViolation if a tenant
// with the same id already exists.
func (tm *tenantManager) CreateTenant(ctx context.Context, tenant *models.Tenant) apperrors.Error {
	if tenant.TenantID == uuid.Nil {
		tenant.TenantID = uuid.New()
	}
	query := `
		INSERT INTO tenants (tenant_id, name, info)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at;
	`
	err := tm.conn().QueryRowContext(ctx, query, tenant.TenantID, tenant.Name, tenant.Info).
		Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return mapPgError(ctx, err, "failed to insert tenant")
	}
	return nil
}

// GetTenant retrieves a tenant by id.
func (tm *tenantManager) GetTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, apperrors.Error) {
	query := `
		SELECT tenant_id, name, info, created_at, updated_at
		FROM tenants
		WHERE tenant_id = $1;
	`
	tenant := &models.Tenant{}
	err := tm.conn().QueryRowContext(ctx, query, tenantID).
		Scan(&tenant.TenantID, &tenant.Name, &tenant.Info, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Msg("tenant not found")
			return nil, dberror.ErrNotFound.Msg("tenant not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve tenant")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return tenant, nil
}

// GetTenantByName retrieves a tenant by its unique name.
func (tm *tenantManager) GetTenantByName(ctx context.Context, name string) (*models.Tenant, apperrors.Error) {
	query := `
		SELECT tenant_id, name, info, created_at, updated_at
		FROM tenants
		WHERE name = $1;
	`
	tenant := &models.Tenant{}
	err := tm.conn().QueryRowContext(ctx, query, name).
		Scan(&tenant.TenantID, &tenant.Name, &tenant.Info, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("tenant not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve tenant")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return tenant, nil
}

// DeleteTenant removes the tenant row; branches and memberships cascade.
// Physical schemas are dropped separately by the schema registry before this
// is called.
func (tm *tenantManager) DeleteTenant(ctx context.Context, tenantID uuid.UUID) apperrors.Error {
	result, err := tm.conn().ExecContext(ctx, `DELETE FROM tenants WHERE tenant_id = $1;`, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to delete tenant")
		return dberror.ErrDatabase.Err(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve result information")
		return dberror.ErrDatabase.Err(err)
	}
	if rowsAffected == 0 {
		log.Ctx(ctx).Info().Str("tenant_id", tenantID.String()).Msg("tenant not found")
	}
	return nil
}

// CreateBranch creates a new branch for the tenant. The physical schema name
// is minted from the branch id and is immutable afterwards. The tenant's
// first branch becomes its default branch.
func (tm *tenantManager) CreateBranch(ctx context.Context, branch *models.Branch) apperrors.Error {
	if branch.TenantID == uuid.Nil {
		return dberror.ErrMissingTenantID
	}
	if branch.BranchID == uuid.Nil {
		branch.BranchID = uuid.New()
	}
	branch.SchemaName = SchemaNameForBranch(branch.BranchID)

	tx, errdb := tm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return dberror.ErrDatabase.Err(errdb)
	}
	var err apperrors.Error
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// First branch of a tenant becomes the default.
	var hasDefault bool
	errdb = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM branches WHERE tenant_id = $1 AND is_default);`, branch.TenantID).Scan(&hasDefault)
	if errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if !hasDefault {
		branch.IsDefault = true
	}

	query := `
		INSERT INTO branches (branch_id, tenant_id, name, schema_name, is_default)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at;
	`
	errdb = tx.QueryRowContext(ctx, query, branch.BranchID, branch.TenantID, branch.Name, branch.SchemaName, branch.IsDefault).
		Scan(&branch.CreatedAt, &branch.UpdatedAt)
	if errdb != nil {
		err = mapPgError(ctx, errdb, "failed to insert branch")
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

func scanBranch(row *sql.Row) (*models.Branch, error) {
	branch := &models.Branch{}
	err := row.Scan(&branch.BranchID, &branch.TenantID, &branch.Name, &branch.SchemaName,
		&branch.IsDefault, &branch.CreatedAt, &branch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return branch, nil
}

const branchColumns = `branch_id, tenant_id, name, schema_name, is_default, created_at, updated_at`

// GetBranch retrieves a branch by id.
func (tm *tenantManager) GetBranch(ctx context.Context, branchID uuid.UUID) (*models.Branch, apperrors.Error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE branch_id = $1;`
	branch, err := scanBranch(tm.conn().QueryRowContext(ctx, query, branchID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("branch not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve branch")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return branch, nil
}

// GetDefaultBranch retrieves the tenant's default branch. A tenant without a
// default branch is misconfigured; that surfaces as ErrNoDefaultBranch.
func (tm *tenantManager) GetDefaultBranch(ctx context.Context, tenantID uuid.UUID) (*models.Branch, apperrors.Error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE tenant_id = $1 AND is_default;`
	branch, err := scanBranch(tm.conn().QueryRowContext(ctx, query, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Error().Str("tenant_id", tenantID.String()).Msg("tenant has no default branch")
			return nil, dberror.ErrNoDefaultBranch
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve default branch")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return branch, nil
}

// ListBranches returns all branches of the tenant.
func (tm *tenantManager) ListBranches(ctx context.Context, tenantID uuid.UUID) ([]*models.Branch, apperrors.Error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE tenant_id = $1 ORDER BY created_at;`
	rows, err := tm.conn().QueryContext(ctx, query, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list branches")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var branches []*models.Branch
	for rows.Next() {
		branch := &models.Branch{}
		err := rows.Scan(&branch.BranchID, &branch.TenantID, &branch.Name, &branch.SchemaName,
			&branch.IsDefault, &branch.CreatedAt, &branch.UpdatedAt)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan branch")
			return nil, dberror.ErrDatabase.Err(err)
		}
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	return branches, nil
}

// SetDefaultBranch makes branchID the tenant's default branch, demoting the
// previous default in the same transaction.
func (tm *tenantManager) SetDefaultBranch(ctx context.Context, tenantID, branchID uuid.UUID) apperrors.Error {
	tx, errdb := tm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return dberror.ErrDatabase.Err(errdb)
	}
	var err apperrors.Error
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, errdb := tx.ExecContext(ctx,
		`UPDATE branches SET is_default = false, updated_at = now() WHERE tenant_id = $1 AND is_default;`, tenantID); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	result, errdb := tx.ExecContext(ctx,
		`UPDATE branches SET is_default = true, updated_at = now() WHERE branch_id = $1 AND tenant_id = $2;`, branchID, tenantID)
	if errdb != nil {
		err = mapPgError(ctx, errdb, "failed to set default branch")
		return err
	}
	rowsAffected, errdb := result.RowsAffected()
	if errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if rowsAffected == 0 {
		err = dberror.ErrNotFound.Msg("branch not found")
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// GetMembership retrieves a user's membership in a tenant.
func (tm *tenantManager) GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.TenantMembership, apperrors.Error) {
	query := `
		SELECT tenant_id, user_id, active_branch_id, created_at, updated_at
		FROM tenant_memberships
		WHERE tenant_id = $1 AND user_id = $2;
	`
	m := &models.TenantMembership{}
	err := tm.conn().QueryRowContext(ctx, query, tenantID, userID).
		Scan(&m.TenantID, &m.UserID, &m.ActiveBranchID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("membership not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve membership")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return m, nil
}

// SetActiveBranch records the branch a user is personally working on,
// creating the membership row if needed.
func (tm *tenantManager) SetActiveBranch(ctx context.Context, tenantID, userID, branchID uuid.UUID) apperrors.Error {
	query := `
		INSERT INTO tenant_memberships (tenant_id, user_id, active_branch_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET active_branch_id = EXCLUDED.active_branch_id, updated_at = now();
	`
	active := uuid.NullUUID{UUID: branchID, Valid: branchID != uuid.Nil}
	if _, err := tm.conn().ExecContext(ctx, query, tenantID, userID, active); err != nil {
		return mapPgError(ctx, err, "failed to set active branch")
	}
	return nil
}
