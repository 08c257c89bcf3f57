package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
)

// Patch is an ordered set of column assignments applied by the version-write
// primitives. Column names are restricted to a lowercase identifier pattern;
// values always travel as query parameters.
type Patch struct {
	cols []string
	vals []any
}

var patchColRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func NewPatch() *Patch {
	return &Patch{}
}

// Set adds a column assignment. Invalid column names panic: a bad name here
// is a programming error, not caller input.
func (p *Patch) Set(col string, val any) *Patch {
	if !patchColRegex.MatchString(col) {
		panic(fmt.Sprintf("invalid patch column name: %q", col))
	}
	p.cols = append(p.cols, col)
	p.vals = append(p.vals, val)
	return p
}

func (p *Patch) Empty() bool {
	return p == nil || len(p.cols) == 0
}

// Value returns the last value set for col, with ok reporting whether the
// patch touches that column at all.
func (p *Patch) Value(col string) (any, bool) {
	if p == nil {
		return nil, false
	}
	for i := len(p.cols) - 1; i >= 0; i-- {
		if p.cols[i] == col {
			return p.vals[i], true
		}
	}
	return nil, false
}

func (p *Patch) Has(col string) bool {
	_, ok := p.Value(col)
	return ok
}

// assignments renders "col = $n" fragments starting at argOffset+1 and
// returns them with the matching values.
func (p *Patch) assignments(argOffset int) (string, []any) {
	if p.Empty() {
		return "", nil
	}
	frags := make([]string, len(p.cols))
	for i, col := range p.cols {
		frags[i] = fmt.Sprintf("%s = $%d", col, argOffset+i+1)
	}
	return strings.Join(frags, ", "), p.vals
}

// UpdateWithVersionCheck applies patch to the row only when its stored
// version matches expectedVersion, bumping the version by one. On mismatch it
// performs no mutation and fails with ErrOptimisticLockConflict carrying the
// winning row's version and last editor. The row is read FOR UPDATE so
// concurrent writers serialize on it.
func (rm *registryManager) UpdateWithVersionCheck(ctx context.Context, schema, table, idCol string, id uuid.UUID, entityType string, expectedVersion int, patch *Patch) (int, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return 0, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	tx, errdb := rm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return 0, dberror.ErrDatabase.Err(errdb)
	}
	newVersion, err := rm.updateWithVersionCheckTx(ctx, tx, schema, table, idCol, id, entityType, expectedVersion, patch)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		return 0, dberror.ErrDatabase.Err(errdb)
	}
	return newVersion, nil
}

// updateWithVersionCheckTx is the in-transaction body of
// UpdateWithVersionCheck, shared with compound operations that hold their own
// transaction.
func (rm *registryManager) updateWithVersionCheckTx(ctx context.Context, tx *sql.Tx, schema, table, idCol string, id uuid.UUID, entityType string, expectedVersion int, patch *Patch) (int, apperrors.Error) {
	if !patchColRegex.MatchString(idCol) {
		return 0, dberror.ErrInvalidInput.Msg("invalid id column name")
	}
	_, userID, _ := tenantAndUserFromContext(ctx)

	conflict := &dberror.VersionConflict{
		EntityID:        id,
		EntityType:      entityType,
		ExpectedVersion: expectedVersion,
	}
	query := fmt.Sprintf(`SELECT version, updated_at, updated_by FROM %s WHERE %s = $1 AND %s FOR UPDATE;`,
		qualified(schema, table), idCol, visibleCond)
	err := tx.QueryRowContext(ctx, query, id).Scan(&conflict.ActualVersion, &conflict.UpdatedAt, &conflict.UpdatedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, dberror.ErrNotFound.Msg(entityType + " not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("table", table).Msg("failed to lock row for version check")
		return 0, dberror.ErrDatabase.Err(err)
	}
	if conflict.ActualVersion != expectedVersion {
		log.Ctx(ctx).Info().
			Str("entity_type", entityType).
			Str("entity_id", id.String()).
			Int("expected", expectedVersion).
			Int("actual", conflict.ActualVersion).
			Msg("optimistic lock conflict")
		return 0, dberror.ErrOptimisticLockConflict.Err(conflict)
	}

	// Patch params bind after the id parameter ($1).
	assigns, vals := patch.assignments(1)
	setClause := "version = version + 1, updated_at = now()"
	if assigns != "" {
		setClause = assigns + ", " + setClause
	}
	args := append([]any{id}, vals...)
	userParam := len(args) + 1
	setClause += fmt.Sprintf(", updated_by = $%d", userParam)
	args = append(args, uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil})

	update := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $1 RETURNING version;`,
		qualified(schema, table), setClause, idCol)
	var newVersion int
	if err := tx.QueryRowContext(ctx, update, args...).Scan(&newVersion); err != nil {
		mapped := mapPgError(ctx, err, "failed to apply version-checked update")
		return 0, mapped
	}
	return newVersion, nil
}

// IncrementVersion applies patch and bumps the version without any check.
// Reserved for internal housekeeping writes, such as resyncing a layout's
// denormalized config, that must not fight the caller's optimistic lock.
func (rm *registryManager) IncrementVersion(ctx context.Context, schema, table, idCol string, id uuid.UUID, patch *Patch) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	return incrementVersionOn(ctx, rm.conn(), schema, table, idCol, id, patch)
}

// execer covers both *sql.Conn and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func incrementVersionOn(ctx context.Context, ex execer, schema, table, idCol string, id uuid.UUID, patch *Patch) apperrors.Error {
	if !patchColRegex.MatchString(idCol) {
		return dberror.ErrInvalidInput.Msg("invalid id column name")
	}
	assigns, vals := patch.assignments(1)
	setClause := "version = version + 1, updated_at = now()"
	if assigns != "" {
		setClause = assigns + ", " + setClause
	}
	args := append([]any{id}, vals...)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $1 AND %s;`,
		qualified(schema, table), setClause, idCol, visibleCond)
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return mapPgError(ctx, err, "failed to increment version")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	if rows == 0 {
		return dberror.ErrNotFound
	}
	return nil
}
