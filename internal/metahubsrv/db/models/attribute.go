package models

import (
	"database/sql"

	"github.com/jackc/pgtype"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

/*
       Column        |          Type           | Collation | Nullable | Default
---------------------+-------------------------+-----------+----------+---------
 attribute_id        | uuid                    |           | not null |
 object_id           | uuid                    |           | not null |
 codename            | character varying(64)   |           | not null |
 data_type           | character varying(32)   |           | not null |
 is_required         | boolean                 |           | not null | false
 is_display          | boolean                 |           | not null | false
 target_object_id    | uuid                    |           |          |
 target_object_kind  | character varying(32)   |           |          |
 parent_attribute_id | uuid                    |           |          |
 sort_order          | integer                 |           | not null | 0
 validation_rules    | jsonb                   |           | not null | '{}'
 ui_config           | jsonb                   |           | not null | '{}'
 + platform/metahub state columns
Indexes:
    "attributes_pkey" PRIMARY KEY, btree (attribute_id)
    "attributes_object_codename_key" UNIQUE, btree (object_id, codename) WHERE NOT is_deleted AND NOT mh_deleted
*/

// Attribute is a field definition on an Object. TABLE-typed attributes own
// child attributes through ParentAttributeID; children never nest further.
type Attribute struct {
	AttributeID       uuid.UUID         `db:"attribute_id"`
	ObjectID          uuid.UUID         `db:"object_id"`
	Codename          string            `db:"codename"`
	DataType          mhcommon.DataType `db:"data_type"`
	IsRequired        bool              `db:"is_required"`
	IsDisplay         bool              `db:"is_display"`
	TargetObjectID    uuid.NullUUID     `db:"target_object_id"`
	TargetObjectKind  sql.NullString    `db:"target_object_kind"`
	ParentAttributeID uuid.NullUUID     `db:"parent_attribute_id"`
	SortOrder         int               `db:"sort_order"`
	ValidationRules   pgtype.JSONB      `db:"validation_rules"`
	UIConfig          pgtype.JSONB      `db:"ui_config"`
	State             RowState
}
