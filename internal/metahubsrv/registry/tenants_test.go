package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func TestCreateTenantSeedsDefaultBranch(t *testing.T) {
	ctx := setupTenant(t)

	branches, err := ListBranches(ctx)
	require.Nil(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, mhcommon.DefaultBranchName, branches[0].Name)
	assert.True(t, branches[0].IsDefault)
}

func TestTenantNameCollision(t *testing.T) {
	ctx := newDb()
	t.Cleanup(func() {
		db.DB(ctx).Close(ctx)
	})

	require.Nil(t, db.DB(ctx).EnsurePublicTables(ctx))

	name := fmt.Sprintf("dup_tenant_%d", time.Now().UnixNano())
	tenant, err := CreateTenant(ctx, &CreateTenantRequest{Name: name})
	require.Nil(t, err)
	t.Cleanup(func() {
		cctx := newDb()
		defer db.DB(cctx).Close(cctx)
		cctx = mhcommon.SetTenantIdInContext(cctx, tenant.TenantID)
		_ = DeleteTenant(cctx, tenant.TenantID)
	})

	_, err = CreateTenant(ctx, &CreateTenantRequest{Name: name})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSetDefaultBranch(t *testing.T) {
	ctx := setupTenant(t)

	staging, err := CreateBranch(ctx, &CreateBranchRequest{Name: "staging"})
	require.Nil(t, err)
	assert.False(t, staging.IsDefault)

	got, err := GetBranch(ctx, staging.BranchID)
	require.Nil(t, err)
	assert.Equal(t, "staging", got.Name)

	require.Nil(t, SetDefaultBranch(ctx, staging.BranchID))

	branches, err := ListBranches(ctx)
	require.Nil(t, err)
	for _, b := range branches {
		assert.Equal(t, b.BranchID == staging.BranchID, b.IsDefault, b.Name)
	}
}
