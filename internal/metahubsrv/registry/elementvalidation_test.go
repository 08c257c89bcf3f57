package registry

import (
	"testing"

	"github.com/jackc/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func attrDef(codename string, dt mhcommon.DataType, required bool) *models.Attribute {
	return &models.Attribute{
		AttributeID: uuid.New(),
		Codename:    codename,
		DataType:    dt,
		IsRequired:  required,
	}
}

func withRules(a *models.Attribute, rules string) *models.Attribute {
	a.ValidationRules = pgtype.JSONB{Bytes: []byte(rules), Status: pgtype.Present}
	return a
}

func childOf(parent *models.Attribute, a *models.Attribute) *models.Attribute {
	a.ParentAttributeID = uuid.NullUUID{UUID: parent.AttributeID, Valid: true}
	return a
}

func TestValidateElementDataShapes(t *testing.T) {
	attrs := []*models.Attribute{
		attrDef("title", mhcommon.DataTypeString, true),
		attrDef("price", mhcommon.DataTypeNumber, false),
		attrDef("in_stock", mhcommon.DataTypeBoolean, false),
	}

	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{"valid full", `{"title":"Desk","price":129.5,"in_stock":true}`, true},
		{"optional omitted", `{"title":"Desk"}`, true},
		{"required missing", `{"price":3}`, false},
		{"required blank", `{"title":"   "}`, false},
		{"required null", `{"title":null}`, false},
		{"wrong type string", `{"title":42}`, false},
		{"wrong type number", `{"title":"x","price":"cheap"}`, false},
		{"wrong type bool", `{"title":"x","in_stock":"yes"}`, false},
		{"unknown keys ignored", `{"title":"x","color":"red"}`, true},
		{"not an object", `[1,2,3]`, false},
		{"not json", `{"title":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateElementData(attrs, []byte(tt.data))
			if tt.ok {
				assert.Nil(t, err, tt.data)
			} else {
				assert.NotNil(t, err, tt.data)
			}
		})
	}
}

func TestValidateTemporalTypes(t *testing.T) {
	attrs := []*models.Attribute{
		attrDef("released_on", mhcommon.DataTypeDate, false),
		attrDef("opens_at", mhcommon.DataTypeTime, false),
		attrDef("updated", mhcommon.DataTypeDateTime, false),
	}

	assert.Nil(t, validateElementData(attrs, []byte(`{"released_on":"2026-02-28","opens_at":"09:30","updated":"2026-02-28T09:30:00Z"}`)))
	assert.Nil(t, validateElementData(attrs, []byte(`{"opens_at":"09:30:15"}`)))

	assert.NotNil(t, validateElementData(attrs, []byte(`{"released_on":"2026-02-30"}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"released_on":"28-02-2026"}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"opens_at":"25:00"}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"updated":"2026-02-28 09:30"}`)))
}

func TestValidateLocalizedString(t *testing.T) {
	attrs := []*models.Attribute{
		attrDef("name", mhcommon.DataTypeLocalizedString, true),
	}

	assert.Nil(t, validateElementData(attrs, []byte(`{"name":{"en":"Chair","de":"Stuhl"}}`)))
	// any non-blank locale satisfies required
	assert.Nil(t, validateElementData(attrs, []byte(`{"name":{"en":"","de":"Stuhl"}}`)))

	assert.NotNil(t, validateElementData(attrs, []byte(`{"name":{"en":"","de":" "}}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"name":{"en":42}}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{}`)))
}

func TestValidateReferenceValues(t *testing.T) {
	attrs := []*models.Attribute{
		attrDef("category", mhcommon.DataTypeReference, false),
		attrDef("status", mhcommon.DataTypeEnumeration, false),
	}

	assert.Nil(t, validateElementData(attrs, []byte(`{"category":"c1b2"}`)))
	assert.Nil(t, validateElementData(attrs, []byte(`{"status":["open","closed"]}`)))

	assert.NotNil(t, validateElementData(attrs, []byte(`{"category":7}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"status":[1,2]}`)))
}

func TestValidateStringRules(t *testing.T) {
	attrs := []*models.Attribute{
		withRules(attrDef("sku", mhcommon.DataTypeString, true),
			`{"minLength":3,"maxLength":8,"pattern":"^[a-z0-9-]+$"}`),
		withRules(attrDef("size", mhcommon.DataTypeString, false),
			`{"options":["s","m","l"]}`),
	}

	assert.Nil(t, validateElementData(attrs, []byte(`{"sku":"ab-123","size":"m"}`)))

	assert.NotNil(t, validateElementData(attrs, []byte(`{"sku":"ab"}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"sku":"abcdefghi"}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"sku":"AB-123"}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"sku":"ab-123","size":"xl"}`)))
}

func TestValidateNumberRules(t *testing.T) {
	attrs := []*models.Attribute{
		withRules(attrDef("price", mhcommon.DataTypeNumber, false),
			`{"min":0,"max":10000,"scale":2}`),
		withRules(attrDef("weight", mhcommon.DataTypeNumber, false),
			`{"precision":5,"scale":2}`),
		withRules(attrDef("qty", mhcommon.DataTypeNumber, false),
			`{"nonNegative":true}`),
	}

	assert.Nil(t, validateElementData(attrs, []byte(`{"price":99.95,"qty":0}`)))
	assert.Nil(t, validateElementData(attrs, []byte(`{"price":10000}`)))
	assert.Nil(t, validateElementData(attrs, []byte(`{"weight":123.45}`)))

	assert.NotNil(t, validateElementData(attrs, []byte(`{"price":-1}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"price":10000.01}`)))
	// scale judged on the literal as written
	assert.NotNil(t, validateElementData(attrs, []byte(`{"price":1.005}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"weight":1234.56}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"qty":-3}`)))
}

func TestValidateTableAttribute(t *testing.T) {
	table := attrDef("variants", mhcommon.DataTypeTable, true)
	attrs := []*models.Attribute{
		table,
		childOf(table, attrDef("sku", mhcommon.DataTypeString, true)),
		childOf(table, attrDef("stock", mhcommon.DataTypeNumber, false)),
	}

	assert.Nil(t, validateElementData(attrs, []byte(`{"variants":[{"sku":"a-1","stock":3},{"sku":"a-2"}]}`)))

	assert.NotNil(t, validateElementData(attrs, []byte(`{}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"variants":{"sku":"a-1"}}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"variants":[{"stock":3}]}`)))
	assert.NotNil(t, validateElementData(attrs, []byte(`{"variants":["a-1"]}`)))

	// optional table may be absent entirely
	table.IsRequired = false
	assert.Nil(t, validateElementData(attrs, []byte(`{}`)))
}

func TestMergeElementData(t *testing.T) {
	merged, err := mergeElementData(
		[]byte(`{"title":"Desk","price":10,"tags":["a"]}`),
		[]byte(`{"price":12,"color":"oak"}`),
	)
	require.Nil(t, err)
	assert.JSONEq(t, `{"title":"Desk","price":12,"tags":["a"],"color":"oak"}`, string(merged))

	// top-level keys replace wholesale, no deep merge
	merged, err = mergeElementData(
		[]byte(`{"name":{"en":"Chair","de":"Stuhl"}}`),
		[]byte(`{"name":{"en":"Stool"}}`),
	)
	require.Nil(t, err)
	assert.JSONEq(t, `{"name":{"en":"Stool"}}`, string(merged))

	merged, err = mergeElementData(nil, []byte(`{"a":1}`))
	require.Nil(t, err)
	assert.JSONEq(t, `{"a":1}`, string(merged))

	_, err = mergeElementData([]byte(`{}`), []byte(`{"a":`))
	assert.NotNil(t, err)
}
