package postgresql

import (
	"regexp"

	"github.com/lib/pq"

	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
)

// System table names inside a tenant schema.
const (
	tableObjects     = "objects"
	tableAttributes  = "attributes"
	tableEnumValues  = "enumeration_values"
	tableElements    = "elements"
	tableSettings    = "settings"
	tableLayouts     = "layouts"
	tableZoneWidgets = "zone_widgets"
)

// stateColumns is the shared two-tier audit/soft-delete column set, in the
// fixed order used by every SELECT and by stateScanDest.
const stateColumns = `created_at, created_by, updated_at, updated_by, version, is_archived, is_locked, ` +
	`is_deleted, deleted_at, deleted_by, mh_published, mh_archived, mh_deleted, mh_deleted_at, mh_deleted_by`

// visibleCond selects rows deleted at neither tier.
const visibleCond = `NOT is_deleted AND NOT mh_deleted`

// trashCond selects rows the trash view shows: metahub-deleted, platform-live.
const trashCond = `mh_deleted AND NOT is_deleted`

// stateColumnsDDL is the column-definition fragment appended to every system
// table's CREATE TABLE statement.
const stateColumnsDDL = `
	created_at timestamptz NOT NULL DEFAULT now(),
	created_by uuid,
	updated_at timestamptz NOT NULL DEFAULT now(),
	updated_by uuid,
	version integer NOT NULL DEFAULT 1,
	is_archived boolean NOT NULL DEFAULT false,
	is_locked boolean NOT NULL DEFAULT false,
	is_deleted boolean NOT NULL DEFAULT false,
	deleted_at timestamptz,
	deleted_by uuid,
	mh_published boolean NOT NULL DEFAULT false,
	mh_archived boolean NOT NULL DEFAULT false,
	mh_deleted boolean NOT NULL DEFAULT false,
	mh_deleted_at timestamptz,
	mh_deleted_by uuid`

// stateScanDest returns scan destinations for stateColumns, in order.
func stateScanDest(s *models.RowState) []any {
	return []any{
		&s.Platform.CreatedAt,
		&s.Platform.CreatedBy,
		&s.Platform.UpdatedAt,
		&s.Platform.UpdatedBy,
		&s.Platform.Version,
		&s.Platform.Archived,
		&s.Platform.Locked,
		&s.Platform.Deleted,
		&s.Platform.DeletedAt,
		&s.Platform.DeletedBy,
		&s.Metahub.Published,
		&s.Metahub.Archived,
		&s.Metahub.Deleted,
		&s.Metahub.DeletedAt,
		&s.Metahub.DeletedBy,
	}
}

var schemaNameRegex = regexp.MustCompile(`^mh_[0-9a-f]{32}$`)

// isValidSchemaName accepts only server-generated schema names. Registry
// methods take the schema as a string; this guards against anything that is
// not a name we minted ending up in identifier position.
func isValidSchemaName(schema string) bool {
	return schemaNameRegex.MatchString(schema)
}

// qualified returns the quoted schema-qualified table identifier.
func qualified(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}
