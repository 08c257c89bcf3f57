package models

import (
	"github.com/jackc/pgtype"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
)

/*
   Column   |          Type           | Collation | Nullable | Default
------------+-------------------------+-----------+----------+---------
 element_id | uuid                    |           | not null |
 object_id  | uuid                    |           | not null |
 data       | jsonb                   |           | not null | '{}'
 sort_order | integer                 |           | not null | 0
 owner_id   | uuid                    |           |          |
 + platform/metahub state columns
Indexes:
    "elements_pkey" PRIMARY KEY, btree (element_id)
    "elements_object_id_idx" btree (object_id)
*/

// Element is a predefined JSON data record attached to a catalog Object.
// Data is keyed by attribute codename and validated against the catalog's
// attribute set on every write.
type Element struct {
	ElementID uuid.UUID     `db:"element_id"`
	ObjectID  uuid.UUID     `db:"object_id"`
	Data      pgtype.JSONB  `db:"data"`
	SortOrder int           `db:"sort_order"`
	OwnerID   uuid.NullUUID `db:"owner_id"`
	State     RowState
}
