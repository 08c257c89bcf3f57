package models

import (
	"github.com/jackc/pgtype"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
)

/*
   Column   |          Type           | Collation | Nullable | Default
------------+-------------------------+-----------+----------+---------
 setting_id | uuid                    |           | not null |
 key        | character varying(128)  |           | not null |
 value      | jsonb                   |           | not null | '{}'
 + platform/metahub state columns
Indexes:
    "settings_pkey" PRIMARY KEY, btree (setting_id)
    "settings_key_key" UNIQUE, btree (key) WHERE NOT is_deleted AND NOT mh_deleted
*/

// Setting holds one per-metahub configuration value.
type Setting struct {
	SettingID uuid.UUID    `db:"setting_id"`
	Key       string       `db:"key"`
	Value     pgtype.JSONB `db:"value"`
	State     RowState
}
