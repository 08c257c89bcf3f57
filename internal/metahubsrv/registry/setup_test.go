package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

var dbInitOnce sync.Once

func newDb() context.Context {
	dbInitOnce.Do(func() {
		if err := db.Init(); err != nil {
			panic(err)
		}
	})
	ctx := log.Logger.WithContext(context.Background())
	ctx = db.ConnCtx(ctx)
	return ctx
}

// setupTenant creates a throwaway tenant with a default branch and returns a
// context carrying it plus a user id. The tenant and its schemas are removed
// on cleanup.
func setupTenant(t *testing.T) context.Context {
	t.Helper()
	ctx := newDb()
	t.Cleanup(func() {
		db.DB(ctx).Close(ctx)
	})
	require.Nil(t, db.DB(ctx).EnsurePublicTables(ctx))

	name := fmt.Sprintf("test_tenant_%d", time.Now().UnixNano())
	tenant, err := CreateTenant(ctx, &CreateTenantRequest{Name: name})
	require.Nil(t, err)

	ctx = mhcommon.SetTenantIdInContext(ctx, tenant.TenantID)
	ctx = mhcommon.SetUserIdInContext(ctx, uuid.New())
	t.Cleanup(func() {
		cleanupCtx := newDb()
		defer db.DB(cleanupCtx).Close(cleanupCtx)
		cleanupCtx = mhcommon.SetTenantIdInContext(cleanupCtx, tenant.TenantID)
		if derr := DeleteTenant(cleanupCtx, tenant.TenantID); derr != nil {
			t.Logf("tenant cleanup failed: %v", derr)
		}
	})
	return ctx
}
