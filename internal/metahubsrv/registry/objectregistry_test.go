package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func createObject(t *testing.T, ctx context.Context, kind mhcommon.ObjectKind, codename string) *ObjectDTO {
	t.Helper()
	obj, err := CreateObject(ctx, &CreateObjectRequest{
		Kind:     kind,
		Codename: codename,
	})
	require.Nil(t, err)
	return obj
}

func TestObjectLifecycle(t *testing.T) {
	ctx := setupTenant(t)

	obj, err := CreateObject(ctx, &CreateObjectRequest{
		Kind:         mhcommon.KindCatalog,
		Codename:     "Product Catalog",
		Presentation: json.RawMessage(`{"label":{"en":"Products"}}`),
	})
	require.Nil(t, err)
	assert.Equal(t, "product_catalog", obj.Codename)
	assert.Equal(t, 1, obj.Audit.Version)

	got, err := GetObject(ctx, obj.ObjectID)
	require.Nil(t, err)
	assert.Equal(t, obj.ObjectID, got.ObjectID)

	byName, err := GetObjectByCodename(ctx, mhcommon.KindCatalog, "Product-Catalog")
	require.Nil(t, err)
	assert.Equal(t, obj.ObjectID, byName.ObjectID)

	createObject(t, ctx, mhcommon.KindEnumeration, "status")

	catalogs, err := ListObjects(ctx, mhcommon.KindCatalog)
	require.Nil(t, err)
	assert.Len(t, catalogs, 1)
	all, err := ListObjects(ctx, "")
	require.Nil(t, err)
	assert.Len(t, all, 2)

	newName := "product_catalog_v2"
	updated, err := UpdateObject(ctx, obj.ObjectID, &UpdateObjectRequest{
		Version:  obj.Audit.Version,
		Codename: &newName,
	})
	require.Nil(t, err)
	assert.Equal(t, "product_catalog_v2", updated.Codename)
	assert.Equal(t, obj.Audit.Version+1, updated.Audit.Version)
}

func TestObjectStaleVersionRejected(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindDocument, "faq")

	name := "faq_v2"
	_, err := UpdateObject(ctx, obj.ObjectID, &UpdateObjectRequest{
		Version:  obj.Audit.Version,
		Codename: &name,
	})
	require.Nil(t, err)

	// replaying the same version must fail without mutating
	name = "faq_v3"
	_, err = UpdateObject(ctx, obj.ObjectID, &UpdateObjectRequest{
		Version:  obj.Audit.Version,
		Codename: &name,
	})
	assert.ErrorIs(t, err, ErrConflict)

	got, gerr := GetObject(ctx, obj.ObjectID)
	require.Nil(t, gerr)
	assert.Equal(t, "faq_v2", got.Codename)
}

func TestObjectCodenameCollision(t *testing.T) {
	ctx := setupTenant(t)
	createObject(t, ctx, mhcommon.KindCatalog, "products")

	_, err := CreateObject(ctx, &CreateObjectRequest{
		Kind:     mhcommon.KindCatalog,
		Codename: "Products",
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestObjectDeleteRestore(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")

	require.Nil(t, DeleteObject(ctx, obj.ObjectID))
	_, err := GetObject(ctx, obj.ObjectID)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	trash, err := ListObjectTrash(ctx)
	require.Nil(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, obj.ObjectID, trash[0].ObjectID)

	restored, err := RestoreObject(ctx, obj.ObjectID)
	require.Nil(t, err)
	assert.Equal(t, "products", restored.Codename)

	// the codename is free while the object sits in trash, and a new
	// claimant blocks the restore afterwards
	require.Nil(t, DeleteObject(ctx, obj.ObjectID))
	createObject(t, ctx, mhcommon.KindCatalog, "products")
	_, err = RestoreObject(ctx, obj.ObjectID)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestObjectPermanentDeleteBlockedByReference(t *testing.T) {
	ctx := setupTenant(t)
	target := createObject(t, ctx, mhcommon.KindCatalog, "categories")
	owner := createObject(t, ctx, mhcommon.KindCatalog, "products")

	_, err := CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:       owner.ObjectID,
		Codename:       "category",
		DataType:       mhcommon.DataTypeReference,
		TargetObjectID: &target.ObjectID,
	})
	require.Nil(t, err)

	err = PermanentDeleteObject(ctx, target.ObjectID)
	assert.ErrorIs(t, err, ErrDeletionBlocked)

	// still present after the refused delete
	_, gerr := GetObject(ctx, target.ObjectID)
	assert.Nil(t, gerr)

	// an unreferenced object deletes for good, even from trash
	spare := createObject(t, ctx, mhcommon.KindDocument, "notes")
	require.Nil(t, DeleteObject(ctx, spare.ObjectID))
	require.Nil(t, PermanentDeleteObject(ctx, spare.ObjectID))
	trash, terr := ListObjectTrash(ctx)
	require.Nil(t, terr)
	assert.Empty(t, trash)
}

func TestObjectRejectsBadInput(t *testing.T) {
	ctx := setupTenant(t)

	_, err := CreateObject(ctx, &CreateObjectRequest{Kind: "WIDGET", Codename: "x"})
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = CreateObject(ctx, &CreateObjectRequest{Kind: mhcommon.KindCatalog, Codename: "9lives"})
	assert.ErrorIs(t, err, ErrInvalidCodename)

	_, err = CreateObject(ctx, &CreateObjectRequest{Kind: mhcommon.KindCatalog})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
