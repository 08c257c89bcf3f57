package models

import (
	"time"

	"github.com/jackc/pgtype"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
)

/*
   Column   |           Type           | Collation | Nullable | Default
------------+--------------------------+-----------+----------+---------
 tenant_id  | uuid                     |           | not null |
 name       | character varying(128)   |           | not null |
 info       | jsonb                    |           |          |
 created_at | timestamp with time zone |           | not null | now()
 updated_at | timestamp with time zone |           | not null | now()
*/

// Tenant model definition. Tenants live in the public schema.
type Tenant struct {
	TenantID  uuid.UUID    `db:"tenant_id"`
	Name      string       `db:"name"`
	Info      pgtype.JSONB `db:"info"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}
