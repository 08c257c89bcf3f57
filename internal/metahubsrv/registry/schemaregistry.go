package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/config"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

// Schema resolution caches. All three are performance optimizations with
// bounded staleness: correctness comes from the double-check under the
// advisory lock, not from cache state. A multi-instance deployment either
// shares these or accepts the staleness window.

type branchCacheKey struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

type branchCacheEntry struct {
	BranchID  uuid.UUID
	ExpiresAt time.Time
}

var (
	// per-user active branch, short TTL
	activeBranches = make(map[branchCacheKey]branchCacheEntry)
	// branch id -> physical schema name; schema names are immutable
	schemaNames = make(map[uuid.UUID]string)
	// schemas whose tables are known to exist
	initializedSchemas = make(map[string]bool)
	cacheMu            sync.RWMutex
)

// InvalidateUserBranch drops the cached active branch for one user.
func InvalidateUserBranch(tenantID, userID uuid.UUID) {
	cacheMu.Lock()
	delete(activeBranches, branchCacheKey{TenantID: tenantID, UserID: userID})
	cacheMu.Unlock()
}

// invalidateTenantCaches drops every cache entry touching the tenant's
// branches. Must run before a schema drop.
func invalidateTenantCaches(tenantID uuid.UUID, branches []*models.Branch) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	for key := range activeBranches {
		if key.TenantID == tenantID {
			delete(activeBranches, key)
		}
	}
	for _, b := range branches {
		delete(schemaNames, b.BranchID)
		delete(initializedSchemas, b.SchemaName)
	}
}

// resolveBranchID determines the caller's effective branch: an explicit
// override in the context wins, then the cached active branch, then a live
// membership lookup, then the tenant's default branch.
func resolveBranchID(ctx context.Context, tenantID, userID uuid.UUID) (uuid.UUID, apperrors.Error) {
	if override := mhcommon.BranchOverrideFromContext(ctx); override != uuid.Nil {
		return override, nil
	}

	key := branchCacheKey{TenantID: tenantID, UserID: userID}
	cacheMu.RLock()
	entry, ok := activeBranches[key]
	cacheMu.RUnlock()
	if ok && time.Now().Before(entry.ExpiresAt) {
		return entry.BranchID, nil
	}

	var branchID uuid.UUID
	if userID != uuid.Nil {
		membership, err := db.DB(ctx).GetMembership(ctx, tenantID, userID)
		if err == nil && membership.ActiveBranchID.Valid {
			branchID = membership.ActiveBranchID.UUID
		}
	}
	if branchID == uuid.Nil {
		branch, err := db.DB(ctx).GetDefaultBranch(ctx, tenantID)
		if err != nil {
			return uuid.Nil, ErrNoDefaultBranch.Err(err)
		}
		branchID = branch.BranchID
	}

	cacheMu.Lock()
	activeBranches[key] = branchCacheEntry{
		BranchID:  branchID,
		ExpiresAt: time.Now().Add(config.BranchCacheTTL()),
	}
	cacheMu.Unlock()
	return branchID, nil
}

// schemaNameForBranchID resolves the branch row's immutable schema name,
// consulting the cache first.
func schemaNameForBranchID(ctx context.Context, branchID uuid.UUID) (string, apperrors.Error) {
	cacheMu.RLock()
	name, ok := schemaNames[branchID]
	cacheMu.RUnlock()
	if ok {
		return name, nil
	}

	branch, err := db.DB(ctx).GetBranch(ctx, branchID)
	if err != nil {
		return "", ErrBranchNotFound.Err(err)
	}
	cacheMu.Lock()
	schemaNames[branchID] = branch.SchemaName
	cacheMu.Unlock()
	return branch.SchemaName, nil
}

// EnsureSchema resolves the caller's effective branch to a physical schema
// name, creating the schema and its system tables on first touch. Creation is
// serialized by an advisory lock on the tenant; the existence check repeats
// under the lock, so racing callers converge on one creation.
func EnsureSchema(ctx context.Context) (string, apperrors.Error) {
	tenantID := mhcommon.TenantIdFromContext(ctx)
	if tenantID == uuid.Nil {
		return "", ErrInvalidRequest.Msg("missing tenant ID")
	}
	userID := mhcommon.UserIdFromContext(ctx)

	branchID, err := resolveBranchID(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	schema, err := schemaNameForBranchID(ctx, branchID)
	if err != nil {
		return "", err
	}

	cacheMu.RLock()
	ready := initializedSchemas[schema]
	cacheMu.RUnlock()
	if ready {
		return schema, nil
	}

	d := db.DB(ctx)
	if err := d.AcquireTenantLock(ctx, tenantID); err != nil {
		return "", err
	}
	defer d.ReleaseTenantLock(ctx, tenantID)

	exists, err := d.SchemaExists(ctx, schema)
	if err != nil {
		return "", err
	}
	if err := d.CreateSchemaIfNotExists(ctx, schema); err != nil {
		return "", err
	}
	if !exists {
		log.Ctx(ctx).Info().Str("schema", schema).Str("tenant_id", tenantID.String()).Msg("created tenant schema")
	}
	if err := seedDefaultLayout(ctx, schema); err != nil {
		return "", err
	}

	cacheMu.Lock()
	initializedSchemas[schema] = true
	cacheMu.Unlock()
	return schema, nil
}

// seedDefaultLayout inserts the initial layout and widget set when the
// schema's layout table is empty. Safe to repeat.
func seedDefaultLayout(ctx context.Context, schema string) apperrors.Error {
	locale := config.Config().DefaultLayoutLocale
	name, _ := json.Marshal(map[string]string{locale: "Default"})
	layout := &models.Layout{
		TemplateKey: mhcommon.DefaultLayoutTemplate,
		Name:        jsonbFrom(name),
		Description: jsonbFrom(nil),
		Config:      jsonbFrom(nil),
		IsActive:    true,
		IsDefault:   true,
	}
	var widgets []*models.ZoneWidget
	for i, w := range defaultSeedWidgets() {
		widgets = append(widgets, &models.ZoneWidget{
			WidgetKey: w.Key,
			Zone:      w.Zone,
			SortOrder: i + 1,
			Config:    jsonbFrom(nil),
		})
	}
	return db.DB(ctx).SeedDefaultLayout(ctx, schema, layout, widgets)
}

// SetActiveBranch switches the caller's working branch and refreshes the
// cache entry so the change is visible immediately on this instance.
func SetActiveBranch(ctx context.Context, branchID uuid.UUID) apperrors.Error {
	tenantID := mhcommon.TenantIdFromContext(ctx)
	if tenantID == uuid.Nil {
		return ErrInvalidRequest.Msg("missing tenant ID")
	}
	userID := mhcommon.UserIdFromContext(ctx)
	if userID == uuid.Nil {
		return ErrMissingUserID
	}

	branch, err := db.DB(ctx).GetBranch(ctx, branchID)
	if err != nil {
		return ErrBranchNotFound.Err(err)
	}
	if branch.TenantID != tenantID {
		return ErrBranchNotFound.Msg("branch belongs to another tenant")
	}
	if err := db.DB(ctx).SetActiveBranch(ctx, tenantID, userID, branchID); err != nil {
		return err
	}

	cacheMu.Lock()
	activeBranches[branchCacheKey{TenantID: tenantID, UserID: userID}] = branchCacheEntry{
		BranchID:  branchID,
		ExpiresAt: time.Now().Add(config.BranchCacheTTL()),
	}
	schemaNames[branchID] = branch.SchemaName
	cacheMu.Unlock()
	return nil
}

// DropTenantSchemas destroys every schema belonging to the tenant. Used only
// for tenant teardown. Caches are cleared before the drop so no stale name
// can resolve to a dead schema.
func DropTenantSchemas(ctx context.Context, tenantID uuid.UUID) apperrors.Error {
	d := db.DB(ctx)
	branches, err := d.ListBranches(ctx, tenantID)
	if err != nil {
		return err
	}
	invalidateTenantCaches(tenantID, branches)

	if err := d.AcquireTenantLock(ctx, tenantID); err != nil {
		return err
	}
	defer d.ReleaseTenantLock(ctx, tenantID)

	for _, b := range branches {
		if err := d.DropSchema(ctx, b.SchemaName); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("schema", b.SchemaName).Msg("dropped tenant schema")
	}
	return nil
}
