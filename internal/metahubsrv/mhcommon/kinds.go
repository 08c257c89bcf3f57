package mhcommon

import "slices"

// ObjectKind classifies entries in the object registry.
type ObjectKind string

const (
	KindCatalog     ObjectKind = "CATALOG"
	KindHub         ObjectKind = "HUB"
	KindDocument    ObjectKind = "DOCUMENT"
	KindEnumeration ObjectKind = "ENUMERATION"
)

// dataBearingKinds carry physical table names for their records.
var dataBearingKinds = []ObjectKind{KindCatalog, KindHub, KindDocument}

func ValidObjectKinds() []ObjectKind {
	return []ObjectKind{KindCatalog, KindHub, KindDocument, KindEnumeration}
}

func (k ObjectKind) IsValid() bool {
	return slices.Contains(ValidObjectKinds(), k)
}

// IsDataBearing reports whether objects of this kind hold data records.
func (k ObjectKind) IsDataBearing() bool {
	return slices.Contains(dataBearingKinds, k)
}

// DataType classifies attribute values.
type DataType string

const (
	DataTypeString          DataType = "STRING"
	DataTypeLocalizedString DataType = "LOCALIZED_STRING"
	DataTypeNumber          DataType = "NUMBER"
	DataTypeBoolean         DataType = "BOOLEAN"
	DataTypeDate            DataType = "DATE"
	DataTypeTime            DataType = "TIME"
	DataTypeDateTime        DataType = "DATETIME"
	DataTypeReference       DataType = "REFERENCE"
	DataTypeEnumeration     DataType = "ENUM"
	DataTypeTable           DataType = "TABLE"
)

func ValidDataTypes() []DataType {
	return []DataType{
		DataTypeString,
		DataTypeLocalizedString,
		DataTypeNumber,
		DataTypeBoolean,
		DataTypeDate,
		DataTypeTime,
		DataTypeDateTime,
		DataTypeReference,
		DataTypeEnumeration,
		DataTypeTable,
	}
}

func (t DataType) IsValid() bool {
	return slices.Contains(ValidDataTypes(), t)
}

// Structural caps on hierarchical attributes.
const (
	MaxTableAttributesPerCatalog = 10
	MaxChildrenPerTable          = 20
	TableAttributeIDPrefixLen    = 12
	TableAttributeIDMaxAttempts  = 64
)

// Layout zones.
const (
	ZoneHeader  = "header"
	ZoneSidebar = "sidebar"
	ZoneMain    = "main"
	ZoneFooter  = "footer"
)

func ValidZones() []string {
	return []string{ZoneHeader, ZoneSidebar, ZoneMain, ZoneFooter}
}

// MoveDirection is the direction of a sort-order move.
type MoveDirection string

const (
	MoveUp   MoveDirection = "up"
	MoveDown MoveDirection = "down"
)

func (d MoveDirection) IsValid() bool {
	return d == MoveUp || d == MoveDown
}

// Entity type names carried by optimistic-lock conflicts.
const (
	EntityTypeObject     = "object"
	EntityTypeAttribute  = "attribute"
	EntityTypeEnumValue  = "enumeration_value"
	EntityTypeElement    = "element"
	EntityTypeSetting    = "setting"
	EntityTypeLayout     = "layout"
	EntityTypeZoneWidget = "zone_widget"
)

const DefaultBranchName = "main"
const DefaultLayoutTemplate = "default"
const DefaultConfigFile = "metahubsrv.toml"
