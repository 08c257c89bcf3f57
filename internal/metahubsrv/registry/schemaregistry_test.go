package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func TestEnsureSchemaIdempotent(t *testing.T) {
	ctx := setupTenant(t)

	schema, err := EnsureSchema(ctx)
	require.Nil(t, err)
	require.NotEmpty(t, schema)

	again, err := EnsureSchema(ctx)
	require.Nil(t, err)
	assert.Equal(t, schema, again)

	exists, err := db.DB(ctx).SchemaExists(ctx, schema)
	require.Nil(t, err)
	assert.True(t, exists)
}

func TestEnsureSchemaRequiresTenant(t *testing.T) {
	ctx := newDb()
	t.Cleanup(func() {
		db.DB(ctx).Close(ctx)
	})

	_, err := EnsureSchema(ctx)
	assert.NotNil(t, err)
}

func TestEnsureSchemaConcurrentFirstTouch(t *testing.T) {
	ctx := setupTenant(t)

	// all racers must agree on the schema and none may fail; the advisory
	// lock serializes first creation
	const racers = 8
	schemas := make([]string, racers)
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rctx := db.ConnCtx(ctx)
			defer db.DB(rctx).Close(rctx)
			s, err := EnsureSchema(rctx)
			schemas[i] = s
			if err != nil {
				errs[i] = err
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < racers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, schemas[0], schemas[i])
	}
}

func TestBranchesIsolateData(t *testing.T) {
	ctx := setupTenant(t)
	createObject(t, ctx, mhcommon.KindCatalog, "products")

	branch, err := CreateBranch(ctx, &CreateBranchRequest{Name: "staging"})
	require.Nil(t, err)
	require.Nil(t, SetActiveBranch(ctx, branch.BranchID))

	// the user's requests now resolve to the new branch's empty schema
	objects, err := ListObjects(ctx, mhcommon.KindCatalog)
	require.Nil(t, err)
	assert.Empty(t, objects)

	createObject(t, ctx, mhcommon.KindCatalog, "experiments")

	// a branch override pins resolution regardless of the active branch
	branches, err := ListBranches(ctx)
	require.Nil(t, err)
	var mainID uuid.UUID
	for _, b := range branches {
		if b.Name == mhcommon.DefaultBranchName {
			mainID = b.BranchID
		}
	}
	require.NotEqual(t, uuid.Nil, mainID)

	octx := mhcommon.SetBranchOverrideInContext(ctx, mainID)
	objects, err = ListObjects(octx, mhcommon.KindCatalog)
	require.Nil(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "products", objects[0].Codename)
}

func TestSetActiveBranchRejectsForeignBranch(t *testing.T) {
	ctx := setupTenant(t)
	other := setupTenant(t)

	foreign, err := CreateBranch(other, &CreateBranchRequest{Name: "dev"})
	require.Nil(t, err)

	err = SetActiveBranch(ctx, foreign.BranchID)
	assert.ErrorIs(t, err, ErrBranchNotFound)
}
