package models

import (
	"database/sql"

	"github.com/jackc/pgtype"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

/*
    Column    |          Type           | Collation | Nullable | Default
--------------+-------------------------+-----------+----------+---------
 object_id    | uuid                    |           | not null |
 kind         | character varying(32)   |           | not null |
 codename     | character varying(64)   |           | not null |
 table_name   | character varying(64)   |           |          |
 presentation | jsonb                   |           | not null | '{}'
 config       | jsonb                   |           | not null | '{}'
 + platform/metahub state columns
Indexes:
    "objects_pkey" PRIMARY KEY, btree (object_id)
    "objects_kind_codename_key" UNIQUE, btree (kind, codename) WHERE NOT is_deleted AND NOT mh_deleted
*/

// Object is a typed entry in the object registry: a catalog, hub, document,
// or enumeration definition.
type Object struct {
	ObjectID     uuid.UUID           `db:"object_id"`
	Kind         mhcommon.ObjectKind `db:"kind"`
	Codename     string              `db:"codename"`
	TableName    sql.NullString      `db:"table_name"`
	Presentation pgtype.JSONB        `db:"presentation"`
	Config       pgtype.JSONB        `db:"config"`
	State        RowState
}
