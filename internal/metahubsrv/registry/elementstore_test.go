package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func TestElementCreateValidates(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")
	createAttribute(t, ctx, obj.ObjectID, "price", mhcommon.DataTypeNumber)
	_, err := CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:   obj.ObjectID,
		Codename:   "title",
		DataType:   mhcommon.DataTypeString,
		IsRequired: true,
	})
	require.Nil(t, err)

	element, err := CreateElement(ctx, &CreateElementRequest{
		ObjectID: obj.ObjectID,
		Data:     json.RawMessage(`{"title":"Desk","price":129.5}`),
	})
	require.Nil(t, err)
	assert.Equal(t, 1, element.SortOrder)
	assert.JSONEq(t, `{"title":"Desk","price":129.5}`, string(element.Data))

	_, err = CreateElement(ctx, &CreateElementRequest{
		ObjectID: obj.ObjectID,
		Data:     json.RawMessage(`{"price":10}`),
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = CreateElement(ctx, &CreateElementRequest{
		ObjectID: obj.ObjectID,
		Data:     json.RawMessage(`{"title":"Chair","price":"cheap"}`),
	})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestElementUpdateMergesBeforeValidating(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindCatalog, "products")
	_, err := CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:   obj.ObjectID,
		Codename:   "title",
		DataType:   mhcommon.DataTypeString,
		IsRequired: true,
	})
	require.Nil(t, err)
	createAttribute(t, ctx, obj.ObjectID, "price", mhcommon.DataTypeNumber)

	element, err := CreateElement(ctx, &CreateElementRequest{
		ObjectID: obj.ObjectID,
		Data:     json.RawMessage(`{"title":"Desk","price":100}`),
	})
	require.Nil(t, err)

	// a partial patch keeps untouched fields
	updated, err := UpdateElement(ctx, element.ElementID, &UpdateElementRequest{
		Version: element.Audit.Version,
		Data:    json.RawMessage(`{"price":90}`),
	})
	require.Nil(t, err)
	assert.JSONEq(t, `{"title":"Desk","price":90}`, string(updated.Data))
	assert.Equal(t, element.Audit.Version+1, updated.Audit.Version)

	// nulling a required field fails against the merged document
	_, err = UpdateElement(ctx, element.ElementID, &UpdateElementRequest{
		Version: updated.Audit.Version,
		Data:    json.RawMessage(`{"title":null}`),
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	// stale version never mutates
	_, err = UpdateElement(ctx, element.ElementID, &UpdateElementRequest{
		Version: element.Audit.Version,
		Data:    json.RawMessage(`{"price":1}`),
	})
	assert.ErrorIs(t, err, ErrConflict)
	got, gerr := GetElement(ctx, element.ElementID)
	require.Nil(t, gerr)
	assert.JSONEq(t, `{"title":"Desk","price":90}`, string(got.Data))
}

func TestElementOnlyOnDataBearingObjects(t *testing.T) {
	ctx := setupTenant(t)
	enum := createObject(t, ctx, mhcommon.KindEnumeration, "status")

	_, err := CreateElement(ctx, &CreateElementRequest{
		ObjectID: enum.ObjectID,
		Data:     json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, ErrNotDataBearingObject)
}

func TestElementOrderingAndLifecycle(t *testing.T) {
	ctx := setupTenant(t)
	obj := createObject(t, ctx, mhcommon.KindDocument, "pages")
	createAttribute(t, ctx, obj.ObjectID, "slug", mhcommon.DataTypeString)

	first, err := CreateElement(ctx, &CreateElementRequest{ObjectID: obj.ObjectID, Data: json.RawMessage(`{"slug":"home"}`)})
	require.Nil(t, err)
	second, err := CreateElement(ctx, &CreateElementRequest{ObjectID: obj.ObjectID, Data: json.RawMessage(`{"slug":"about"}`)})
	require.Nil(t, err)

	require.Nil(t, MoveElement(ctx, obj.ObjectID, second.ElementID, mhcommon.MoveUp))
	elements, err := ListElements(ctx, obj.ObjectID)
	require.Nil(t, err)
	require.Len(t, elements, 2)
	assert.Equal(t, second.ElementID, elements[0].ElementID)
	assert.Equal(t, 1, elements[0].SortOrder)
	assert.Equal(t, 2, elements[1].SortOrder)

	require.Nil(t, DeleteElement(ctx, first.ElementID))
	elements, err = ListElements(ctx, obj.ObjectID)
	require.Nil(t, err)
	assert.Len(t, elements, 1)

	restored, err := RestoreElement(ctx, first.ElementID)
	require.Nil(t, err)
	assert.JSONEq(t, `{"slug":"home"}`, string(restored.Data))

	require.Nil(t, DeleteElement(ctx, first.ElementID))
	require.Nil(t, PermanentDeleteElement(ctx, first.ElementID))
	_, err = RestoreElement(ctx, first.ElementID)
	assert.ErrorIs(t, err, ErrElementNotFound)
}
