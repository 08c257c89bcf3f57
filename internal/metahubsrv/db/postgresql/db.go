// Package postgresql implements the metahub persistence layer. The tenant
// manager owns the public-schema tables (tenants, branches, memberships), the
// schema manager owns per-tenant schema DDL and the advisory lock guarding
// first-time creation, and the registry manager owns the system tables inside
// a tenant schema. Registry methods take the physical schema name resolved by
// the schema registry; they never resolve schemas themselves.
package postgresql

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dbmanager"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

type metahubDb struct {
	tm *tenantManager
	sm *schemaManager
	rm *registryManager
	cm *connectionManager
}

type tenantManager struct {
	c dbmanager.ScopedConn
}

type schemaManager struct {
	c dbmanager.ScopedConn
}

type registryManager struct {
	c dbmanager.ScopedConn
}

type connectionManager struct {
	c dbmanager.ScopedConn
}

func NewMetahubDb(c dbmanager.ScopedConn) (*tenantManager, *schemaManager, *registryManager, *connectionManager) {
	h := &metahubDb{}
	h.tm = &tenantManager{c: c}
	h.sm = &schemaManager{c: c}
	h.rm = &registryManager{c: c}
	h.cm = &connectionManager{c: c}
	return h.tm, h.sm, h.rm, h.cm
}

func (tm *tenantManager) conn() *sql.Conn   { return tm.c.Conn() }
func (sm *schemaManager) conn() *sql.Conn   { return sm.c.Conn() }
func (rm *registryManager) conn() *sql.Conn { return rm.c.Conn() }

func (cm *connectionManager) AddScopes(ctx context.Context, scopes map[string]string) {
	cm.c.AddScopes(ctx, scopes)
}

func (cm *connectionManager) DropScopes(ctx context.Context, scopes []string) error {
	return cm.c.DropScopes(ctx, scopes)
}

func (cm *connectionManager) AddScope(ctx context.Context, scope, value string) {
	cm.c.AddScope(ctx, scope, value)
}

func (cm *connectionManager) DropScope(ctx context.Context, scope string) error {
	return cm.c.DropScope(ctx, scope)
}

func (cm *connectionManager) DropAllScopes(ctx context.Context) error {
	return cm.c.DropAllScopes(ctx)
}

func (cm *connectionManager) Close(ctx context.Context) {
	cm.c.Close(ctx)
}

// tenantAndUserFromContext pulls the caller identity out of the request
// context. The tenant is mandatory; the user may be nil for service-internal
// housekeeping.
func tenantAndUserFromContext(ctx context.Context) (tenantID uuid.UUID, userID uuid.UUID, err apperrors.Error) {
	tenantID = mhcommon.TenantIdFromContext(ctx)
	userID = mhcommon.UserIdFromContext(ctx)
	if tenantID == uuid.Nil {
		err = dberror.ErrMissingTenantID
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve tenant ID from context")
	}
	return
}
