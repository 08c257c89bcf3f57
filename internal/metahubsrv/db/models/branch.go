package models

import (
	"time"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
)

/*
   Column    |           Type           | Collation | Nullable | Default
-------------+--------------------------+-----------+----------+---------
 branch_id   | uuid                     |           | not null |
 tenant_id   | uuid                     |           | not null |
 name        | character varying(128)   |           | not null |
 schema_name | character varying(64)    |           | not null |
 is_default  | boolean                  |           | not null | false
 created_at  | timestamp with time zone |           | not null | now()
 updated_at  | timestamp with time zone |           | not null | now()
Indexes:
    "branches_pkey" PRIMARY KEY, btree (branch_id)
    "branches_schema_name_key" UNIQUE, btree (schema_name)
    "branches_tenant_id_name_key" UNIQUE, btree (tenant_id, name)
    "branches_tenant_default_key" UNIQUE, btree (tenant_id) WHERE is_default
*/

// Branch maps 1:1 to a physical schema. The schema name is assigned at
// creation and never changes afterwards.
type Branch struct {
	BranchID   uuid.UUID `db:"branch_id"`
	TenantID   uuid.UUID `db:"tenant_id"`
	Name       string    `db:"name"`
	SchemaName string    `db:"schema_name"`
	IsDefault  bool      `db:"is_default"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// TenantMembership records a user's membership in a tenant and the branch
// they are personally working on, if any.
type TenantMembership struct {
	TenantID       uuid.UUID     `db:"tenant_id"`
	UserID         uuid.UUID     `db:"user_id"`
	ActiveBranchID uuid.NullUUID `db:"active_branch_id"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}
