package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func createAttribute(t *testing.T, ctx context.Context, objectID uuid.UUID, codename string, dt mhcommon.DataType) *AttributeDTO {
	t.Helper()
	attr, err := CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID: objectID,
		Codename: codename,
		DataType: dt,
	})
	require.Nil(t, err)
	return attr
}

func TestAttributeCreateAndList(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")

	a1 := createAttribute(t, ctx, obj.ObjectID, "title", mhcommon.DataTypeString)
	a2 := createAttribute(t, ctx, obj.ObjectID, "price", mhcommon.DataTypeNumber)
	assert.Equal(t, 1, a1.SortOrder)
	assert.Equal(t, 2, a2.SortOrder)

	attrs, err := ListAttributes(ctx, obj.ObjectID)
	require.Nil(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "title", attrs[0].Codename)
	assert.Equal(t, "price", attrs[1].Codename)
}

func TestAttributeMoveReorders(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")
	a := createAttribute(t, ctx, obj.ObjectID, "a", mhcommon.DataTypeString)
	b := createAttribute(t, ctx, obj.ObjectID, "b", mhcommon.DataTypeString)
	c := createAttribute(t, ctx, obj.ObjectID, "c", mhcommon.DataTypeString)

	require.Nil(t, MoveAttribute(ctx, obj.ObjectID, c.AttributeID, mhcommon.MoveUp))

	attrs, err := ListAttributes(ctx, obj.ObjectID)
	require.Nil(t, err)
	require.Len(t, attrs, 3)
	assert.Equal(t, []string{"a", "c", "b"}, attrCodenames(attrs))
	for i, at := range attrs {
		assert.Equal(t, i+1, at.SortOrder)
	}

	// moving past either end leaves the order untouched
	require.Nil(t, MoveAttribute(ctx, obj.ObjectID, a.AttributeID, mhcommon.MoveUp))
	require.Nil(t, MoveAttribute(ctx, obj.ObjectID, b.AttributeID, mhcommon.MoveDown))
	attrs, err = ListAttributes(ctx, obj.ObjectID)
	require.Nil(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, attrCodenames(attrs))
}

func attrCodenames(attrs []*AttributeDTO) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Codename
	}
	return out
}

func TestDisplayAttributeExclusive(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")
	title := createAttribute(t, ctx, obj.ObjectID, "title", mhcommon.DataTypeString)
	sku := createAttribute(t, ctx, obj.ObjectID, "sku", mhcommon.DataTypeString)

	require.Nil(t, SetDisplayAttribute(ctx, obj.ObjectID, title.AttributeID))
	require.Nil(t, SetDisplayAttribute(ctx, obj.ObjectID, sku.AttributeID))

	attrs, err := ListAttributes(ctx, obj.ObjectID)
	require.Nil(t, err)
	for _, a := range attrs {
		if a.AttributeID == sku.AttributeID {
			assert.True(t, a.IsDisplay)
			// promotion to display forces required
			assert.True(t, a.IsRequired)
		} else {
			assert.False(t, a.IsDisplay)
		}
	}

	// the display attribute cannot be deleted while siblings remain
	err = DeleteAttribute(ctx, sku.AttributeID)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// reassigning the flag frees the old holder for deletion
	require.Nil(t, SetDisplayAttribute(ctx, obj.ObjectID, title.AttributeID))
	require.Nil(t, DeleteAttribute(ctx, sku.AttributeID))
}

func TestClearDisplayAttribute(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")
	title := createAttribute(t, ctx, obj.ObjectID, "title", mhcommon.DataTypeString)
	sku := createAttribute(t, ctx, obj.ObjectID, "sku", mhcommon.DataTypeString)

	// clearing a non-display attribute is a no-op
	require.Nil(t, ClearDisplayAttribute(ctx, obj.ObjectID, sku.AttributeID))

	// clearing the sole display attribute would leave the scope without one
	require.Nil(t, SetDisplayAttribute(ctx, obj.ObjectID, title.AttributeID))
	err := ClearDisplayAttribute(ctx, obj.ObjectID, title.AttributeID)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestTableAttributeStructure(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")
	table := createAttribute(t, ctx, obj.ObjectID, "variants", mhcommon.DataTypeTable)

	child, err := CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:          obj.ObjectID,
		Codename:          "sku",
		DataType:          mhcommon.DataTypeString,
		ParentAttributeID: &table.AttributeID,
	})
	require.Nil(t, err)
	require.NotNil(t, child.ParentAttributeID)
	assert.Equal(t, table.AttributeID, *child.ParentAttributeID)

	// a TABLE cannot nest under a TABLE
	_, err = CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:          obj.ObjectID,
		Codename:          "inner",
		DataType:          mhcommon.DataTypeTable,
		ParentAttributeID: &table.AttributeID,
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// children only attach to TABLE attributes
	plain := createAttribute(t, ctx, obj.ObjectID, "title", mhcommon.DataTypeString)
	_, err = CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:          obj.ObjectID,
		Codename:          "oops",
		DataType:          mhcommon.DataTypeString,
		ParentAttributeID: &plain.AttributeID,
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// a TABLE attribute can never carry the display flag
	err = SetDisplayAttribute(ctx, obj.ObjectID, table.AttributeID)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// deleting the table takes its children along
	require.Nil(t, DeleteAttribute(ctx, table.AttributeID))
	attrs, lerr := ListAttributes(ctx, obj.ObjectID)
	require.Nil(t, lerr)
	assert.Equal(t, []string{"title"}, attrCodenames(attrs))
}

func TestEnumAttributeTargetChecks(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")
	enum := createObject(t, ctx, mhcommon.KindEnumeration, "status")

	attr, err := CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:       obj.ObjectID,
		Codename:       "status",
		DataType:       mhcommon.DataTypeEnumeration,
		TargetObjectID: &enum.ObjectID,
	})
	require.Nil(t, err)
	assert.Equal(t, string(mhcommon.KindEnumeration), attr.TargetObjectKind)

	// ENUM needs a target
	_, err = CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID: obj.ObjectID,
		Codename: "state",
		DataType: mhcommon.DataTypeEnumeration,
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// and the target must be an enumeration
	_, err = CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:       obj.ObjectID,
		Codename:       "state",
		DataType:       mhcommon.DataTypeEnumeration,
		TargetObjectID: &obj.ObjectID,
	})
	assert.ErrorIs(t, err, ErrNotEnumerationObject)

	// scalar types reject targets
	_, err = CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:       obj.ObjectID,
		Codename:       "title",
		DataType:       mhcommon.DataTypeString,
		TargetObjectID: &enum.ObjectID,
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAttributeUpdateImmutables(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")
	attr := createAttribute(t, ctx, obj.ObjectID, "title", mhcommon.DataTypeString)

	required := true
	updated, err := UpdateAttribute(ctx, attr.AttributeID, &UpdateAttributeRequest{
		Version:    attr.Audit.Version,
		IsRequired: &required,
	})
	require.Nil(t, err)
	assert.True(t, updated.IsRequired)
	assert.Equal(t, mhcommon.DataTypeString, updated.DataType)

	// stale version is refused
	_, err = UpdateAttribute(ctx, attr.AttributeID, &UpdateAttributeRequest{
		Version:    attr.Audit.Version,
		IsRequired: &required,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAttributeRestore(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")
	attr := createAttribute(t, ctx, obj.ObjectID, "title", mhcommon.DataTypeString)
	createAttribute(t, ctx, obj.ObjectID, "sku", mhcommon.DataTypeString)

	require.Nil(t, DeleteAttribute(ctx, attr.AttributeID))
	restored, err := RestoreAttribute(ctx, attr.AttributeID)
	require.Nil(t, err)
	assert.Equal(t, "title", restored.Codename)

	// a new sibling claiming the codename blocks restore
	require.Nil(t, DeleteAttribute(ctx, attr.AttributeID))
	createAttribute(t, ctx, obj.ObjectID, "title", mhcommon.DataTypeString)
	_, err = RestoreAttribute(ctx, attr.AttributeID)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}
