package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func createEnumValue(t *testing.T, ctx context.Context, objectID uuid.UUID, codename string, isDefault bool) *EnumValueDTO {
	t.Helper()
	v, err := CreateEnumValue(ctx, &CreateEnumValueRequest{
		ObjectID:  objectID,
		Codename:  codename,
		IsDefault: isDefault,
	})
	require.Nil(t, err)
	return v
}

func enumCodenames(values []*EnumValueDTO) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Codename
	}
	return out
}

func TestEnumValueOrdering(t *testing.T) {
	ctx := setupTenant(t)
	enum := createObject(t, ctx, mhcommon.KindEnumeration, "status")

	createEnumValue(t, ctx, enum.ObjectID, "open", false)
	createEnumValue(t, ctx, enum.ObjectID, "pending", false)
	closed := createEnumValue(t, ctx, enum.ObjectID, "closed", false)

	values, err := ListEnumValues(ctx, enum.ObjectID)
	require.Nil(t, err)
	assert.Equal(t, []string{"open", "pending", "closed"}, enumCodenames(values))
	for i, v := range values {
		assert.Equal(t, i+1, v.SortOrder)
	}

	require.Nil(t, MoveEnumValue(ctx, closed.ValueID, mhcommon.MoveUp))
	values, err = ListEnumValues(ctx, enum.ObjectID)
	require.Nil(t, err)
	assert.Equal(t, []string{"open", "closed", "pending"}, enumCodenames(values))
}

func TestEnumDefaultExclusive(t *testing.T) {
	ctx := setupTenant(t)
	enum := createObject(t, ctx, mhcommon.KindEnumeration, "status")

	createEnumValue(t, ctx, enum.ObjectID, "open", true)
	closed := createEnumValue(t, ctx, enum.ObjectID, "closed", false)

	// flipping the default demotes the previous holder in the same write
	flip := true
	updated, err := UpdateEnumValue(ctx, closed.ValueID, &UpdateEnumValueRequest{
		Version:   closed.Audit.Version,
		IsDefault: &flip,
	})
	require.Nil(t, err)
	assert.True(t, updated.IsDefault)

	values, lerr := ListEnumValues(ctx, enum.ObjectID)
	require.Nil(t, lerr)
	defaults := 0
	for _, v := range values {
		if v.IsDefault {
			defaults++
			assert.Equal(t, closed.ValueID, v.ValueID)
		}
	}
	assert.Equal(t, 1, defaults)

	// creating a new default demotes again
	final := createEnumValue(t, ctx, enum.ObjectID, "archived", true)
	values, lerr = ListEnumValues(ctx, enum.ObjectID)
	require.Nil(t, lerr)
	for _, v := range values {
		assert.Equal(t, v.ValueID == final.ValueID, v.IsDefault, v.Codename)
	}
}

func TestEnumValueRestoreDropsDefault(t *testing.T) {
	ctx := setupTenant(t)
	enum := createObject(t, ctx, mhcommon.KindEnumeration, "status")

	open := createEnumValue(t, ctx, enum.ObjectID, "open", true)
	require.Nil(t, DeleteEnumValue(ctx, open.ValueID))

	createEnumValue(t, ctx, enum.ObjectID, "closed", true)

	restored, err := RestoreEnumValue(ctx, open.ValueID)
	require.Nil(t, err)
	assert.False(t, restored.IsDefault)

	values, lerr := ListEnumValues(ctx, enum.ObjectID)
	require.Nil(t, lerr)
	for _, v := range values {
		assert.Equal(t, v.Codename == "closed", v.IsDefault)
	}
}

func TestEnumValueDeleteBlockedByUsage(t *testing.T) {
	ctx := setupTenant(t)
	enum := createObject(t, ctx, mhcommon.KindEnumeration, "status")
	open := createEnumValue(t, ctx, enum.ObjectID, "open", false)

	catalog := createObject(t, ctx, mhcommon.KindCatalog, "tickets")
	_, err := CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:       catalog.ObjectID,
		Codename:       "status",
		DataType:       mhcommon.DataTypeEnumeration,
		TargetObjectID: &enum.ObjectID,
	})
	require.Nil(t, err)

	element, err := CreateElement(ctx, &CreateElementRequest{
		ObjectID: catalog.ObjectID,
		Data:     json.RawMessage(`{"status":"` + open.ValueID.String() + `"}`),
	})
	require.Nil(t, err)

	err = DeleteEnumValue(ctx, open.ValueID)
	assert.ErrorIs(t, err, ErrDeletionBlocked)
	err = PermanentDeleteEnumValue(ctx, open.ValueID)
	assert.ErrorIs(t, err, ErrDeletionBlocked)

	// once the element stops using the value it can go
	_, err = UpdateElement(ctx, element.ElementID, &UpdateElementRequest{
		Version: element.Audit.Version,
		Data:    json.RawMessage(`{"status":null}`),
	})
	require.Nil(t, err)
	require.Nil(t, DeleteEnumValue(ctx, open.ValueID))
}

func TestEnumValueDeleteBlockedByAttributeDefault(t *testing.T) {
	ctx := setupTenant(t)
	enum := createObject(t, ctx, mhcommon.KindEnumeration, "status")
	open := createEnumValue(t, ctx, enum.ObjectID, "open", false)

	catalog := createObject(t, ctx, mhcommon.KindCatalog, "tickets")
	_, err := CreateAttribute(ctx, &CreateAttributeRequest{
		ObjectID:       catalog.ObjectID,
		Codename:       "status",
		DataType:       mhcommon.DataTypeEnumeration,
		TargetObjectID: &enum.ObjectID,
		UIConfig:       json.RawMessage(`{"defaultValue":"` + open.ValueID.String() + `"}`),
	})
	require.Nil(t, err)

	err = DeleteEnumValue(ctx, open.ValueID)
	assert.ErrorIs(t, err, ErrDeletionBlocked)
}

func TestEnumValuesRequireEnumerationObject(t *testing.T) {
	ctx := setupTenant(t)
	catalog := createObject(t, ctx, mhcommon.KindCatalog, "products")

	_, err := CreateEnumValue(ctx, &CreateEnumValueRequest{
		ObjectID: catalog.ObjectID,
		Codename: "oops",
	})
	assert.ErrorIs(t, err, ErrNotEnumerationObject)

	_, err = ListEnumValues(ctx, catalog.ObjectID)
	assert.ErrorIs(t, err, ErrNotEnumerationObject)
}
