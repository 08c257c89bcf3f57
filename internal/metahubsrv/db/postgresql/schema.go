package postgresql

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
)

// SchemaNameForBranch derives the immutable physical schema name for a
// branch. The name is minted server-side from the branch id; caller-supplied
// strings never reach identifier position.
func SchemaNameForBranch(branchID uuid.UUID) string {
	return "mh_" + uuid.HexPrefix(branchID, 32)
}

// TenantLockKey maps a tenant id onto the bigint keyspace of Postgres
// advisory locks with a deterministic hash, so every instance computes the
// same key for the same tenant.
func TenantLockKey(tenantID uuid.UUID) int64 {
	sum := sha256.Sum256(tenantID[:])
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// AcquireTenantLock takes the session-level advisory lock guarding first-time
// schema creation for the tenant. It blocks until the lock is granted or
// lock_timeout expires. Callers must release on every exit path.
func (sm *schemaManager) AcquireTenantLock(ctx context.Context, tenantID uuid.UUID) apperrors.Error {
	_, err := sm.conn().ExecContext(ctx, `SELECT pg_advisory_lock($1);`, TenantLockKey(tenantID))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("tenant_id", tenantID.String()).Msg("failed to acquire tenant advisory lock")
		return dberror.ErrDatabase.MsgErr("failed to acquire tenant lock", err)
	}
	return nil
}

// ReleaseTenantLock releases the advisory lock. A release failure is logged
// and swallowed: the lock dies with the session either way.
func (sm *schemaManager) ReleaseTenantLock(ctx context.Context, tenantID uuid.UUID) {
	_, err := sm.conn().ExecContext(ctx, `SELECT pg_advisory_unlock($1);`, TenantLockKey(tenantID))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("tenant_id", tenantID.String()).Msg("failed to release tenant advisory lock")
	}
}

// systemTableDDL returns the idempotent CREATE statements for every system
// table and its partial unique indexes, in dependency order. The enumeration
// default-flag index is deliberately absent: it is created lazily by
// EnsureEnumDefaultIndex after the one-time duplicate cleanup.
func systemTableDDL(schema string) []string {
	q := func(table string) string { return qualified(schema, table) }
	ix := func(name string) string { return pq.QuoteIdentifier(name) }
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	object_id uuid PRIMARY KEY,
	kind varchar(32) NOT NULL,
	codename varchar(64) NOT NULL,
	table_name varchar(64),
	presentation jsonb NOT NULL DEFAULT '{}',
	config jsonb NOT NULL DEFAULT '{}',%s
);`, q(tableObjects), stateColumnsDDL),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (kind, codename) WHERE %s;`,
			ix("objects_kind_codename_key"), q(tableObjects), visibleCond),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	attribute_id uuid PRIMARY KEY,
	object_id uuid NOT NULL,
	codename varchar(64) NOT NULL,
	data_type varchar(32) NOT NULL,
	is_required boolean NOT NULL DEFAULT false,
	is_display boolean NOT NULL DEFAULT false,
	target_object_id uuid,
	target_object_kind varchar(32),
	parent_attribute_id uuid,
	sort_order integer NOT NULL DEFAULT 0,
	validation_rules jsonb NOT NULL DEFAULT '{}',
	ui_config jsonb NOT NULL DEFAULT '{}',%s
);`, q(tableAttributes), stateColumnsDDL),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (object_id, codename) WHERE %s;`,
			ix("attributes_object_codename_key"), q(tableAttributes), visibleCond),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (object_id);`,
			ix("attributes_object_id_idx"), q(tableAttributes)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	value_id uuid PRIMARY KEY,
	object_id uuid NOT NULL,
	codename varchar(64) NOT NULL,
	name jsonb NOT NULL DEFAULT '{}',
	description jsonb NOT NULL DEFAULT '{}',
	sort_order integer NOT NULL DEFAULT 0,
	is_default boolean NOT NULL DEFAULT false,%s
);`, q(tableEnumValues), stateColumnsDDL),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (object_id, codename) WHERE %s;`,
			ix("enumeration_values_object_codename_key"), q(tableEnumValues), visibleCond),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	element_id uuid PRIMARY KEY,
	object_id uuid NOT NULL,
	data jsonb NOT NULL DEFAULT '{}',
	sort_order integer NOT NULL DEFAULT 0,
	owner_id uuid,%s
);`, q(tableElements), stateColumnsDDL),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (object_id);`,
			ix("elements_object_id_idx"), q(tableElements)),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	setting_id uuid PRIMARY KEY,
	key varchar(128) NOT NULL,
	value jsonb NOT NULL DEFAULT '{}',%s
);`, q(tableSettings), stateColumnsDDL),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (key) WHERE %s;`,
			ix("settings_key_key"), q(tableSettings), visibleCond),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	layout_id uuid PRIMARY KEY,
	template_key varchar(64) NOT NULL,
	name jsonb NOT NULL DEFAULT '{}',
	description jsonb NOT NULL DEFAULT '{}',
	config jsonb NOT NULL DEFAULT '{}',
	is_active boolean NOT NULL DEFAULT true,
	is_default boolean NOT NULL DEFAULT false,
	sort_order integer NOT NULL DEFAULT 0,%s
);`, q(tableLayouts), stateColumnsDDL),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	widget_id uuid PRIMARY KEY,
	layout_id uuid NOT NULL,
	widget_key varchar(64) NOT NULL,
	zone varchar(64) NOT NULL,
	sort_order integer NOT NULL DEFAULT 0,
	config jsonb NOT NULL DEFAULT '{}',%s
);`, q(tableZoneWidgets), stateColumnsDDL),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (layout_id, zone);`,
			ix("zone_widgets_layout_zone_idx"), q(tableZoneWidgets)),
	}
}

// CreateSchemaIfNotExists creates the physical schema and all of its system
// tables and indexes. Every statement is idempotent, so repeating the whole
// sequence after a partial failure is safe. Callers are expected to hold the
// tenant advisory lock.
func (sm *schemaManager) CreateSchemaIfNotExists(ctx context.Context, schema string) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	stmts := append([]string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pq.QuoteIdentifier(schema)),
	}, systemTableDDL(schema)...)
	for _, stmt := range stmts {
		if _, err := sm.conn().ExecContext(ctx, stmt); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("schema", schema).Msg("failed to create schema objects")
			return dberror.ErrDatabase.MsgErr("failed to create schema objects", err)
		}
	}
	return nil
}

// SchemaExists reports whether the physical schema already exists.
func (sm *schemaManager) SchemaExists(ctx context.Context, schema string) (bool, apperrors.Error) {
	var exists bool
	err := sm.conn().QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1);`, schema).Scan(&exists)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("schema", schema).Msg("failed to check schema existence")
		return false, dberror.ErrDatabase.Err(err)
	}
	return exists, nil
}

// DropSchema removes the physical schema and everything in it. Destructive;
// used only for tenant teardown.
func (sm *schemaManager) DropSchema(ctx context.Context, schema string) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	_, err := sm.conn().ExecContext(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE;`, pq.QuoteIdentifier(schema)))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("schema", schema).Msg("failed to drop schema")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// EnsureEnumDefaultIndex heals duplicate defaults and then creates the
// partial unique index enforcing at most one default value per enumeration.
// Lazy, idempotent migration: run on first touch of a schema rather than at
// creation time, so schemas created before the constraint existed are healed
// too. All but the lowest-sorted default per enumeration are demoted.
func (sm *schemaManager) EnsureEnumDefaultIndex(ctx context.Context, schema string) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	tx, errdb := sm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return dberror.ErrDatabase.Err(errdb)
	}
	var err apperrors.Error
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	cleanup := fmt.Sprintf(`
		UPDATE %s SET is_default = false, updated_at = now()
		WHERE value_id IN (
			SELECT value_id FROM (
				SELECT value_id,
				       ROW_NUMBER() OVER (PARTITION BY object_id ORDER BY sort_order, value_id) AS rn
				FROM %s
				WHERE is_default AND %s
			) ranked
			WHERE ranked.rn > 1
		);`, qualified(schema, tableEnumValues), qualified(schema, tableEnumValues), visibleCond)
	if _, errdb := tx.ExecContext(ctx, cleanup); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("schema", schema).Msg("failed to demote duplicate enum defaults")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	index := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (object_id) WHERE is_default AND %s;`,
		pq.QuoteIdentifier("enumeration_values_object_default_key"), qualified(schema, tableEnumValues), visibleCond)
	if _, errdb := tx.ExecContext(ctx, index); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("schema", schema).Msg("failed to create enum default index")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}
