package models

import (
	"github.com/jackc/pgtype"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
)

/*
   Column    |          Type           | Collation | Nullable | Default
-------------+-------------------------+-----------+----------+---------
 value_id    | uuid                    |           | not null |
 object_id   | uuid                    |           | not null |
 codename    | character varying(64)   |           | not null |
 name        | jsonb                   |           | not null | '{}'
 description | jsonb                   |           | not null | '{}'
 sort_order  | integer                 |           | not null | 0
 is_default  | boolean                 |           | not null | false
 + platform/metahub state columns
Indexes:
    "enumeration_values_pkey" PRIMARY KEY, btree (value_id)
    "enumeration_values_object_codename_key" UNIQUE, btree (object_id, codename) WHERE NOT is_deleted AND NOT mh_deleted
    "enumeration_values_object_default_key" UNIQUE, btree (object_id) WHERE is_default AND NOT is_deleted AND NOT mh_deleted
      (created lazily by EnsureDefaultConstraint, not at schema creation)
*/

// EnumValue is one entry of an enumeration Object's ordered value list.
// Name and Description hold localized content keyed by locale.
type EnumValue struct {
	ValueID     uuid.UUID    `db:"value_id"`
	ObjectID    uuid.UUID    `db:"object_id"`
	Codename    string       `db:"codename"`
	Name        pgtype.JSONB `db:"name"`
	Description pgtype.JSONB `db:"description"`
	SortOrder   int          `db:"sort_order"`
	IsDefault   bool         `db:"is_default"`
	State       RowState
}
