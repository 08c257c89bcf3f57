package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

const objectColumns = `object_id, kind, codename, table_name, presentation, config, ` + stateColumns

func scanObject(scan func(dest ...any) error) (*models.Object, error) {
	obj := &models.Object{}
	dest := []any{&obj.ObjectID, &obj.Kind, &obj.Codename, &obj.TableName, &obj.Presentation, &obj.Config}
	dest = append(dest, stateScanDest(&obj.State)...)
	if err := scan(dest...); err != nil {
		return nil, err
	}
	return obj, nil
}

// CreateObject inserts a new registry object. A codename collision among
// visible rows of the same kind surfaces as ErrUniqueViolation via the
// partial unique index.
func (rm *registryManager) CreateObject(ctx context.Context, schema string, obj *models.Object) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	_, userID, err := tenantAndUserFromContext(ctx)
	if err != nil {
		return err
	}
	if obj.ObjectID == uuid.Nil {
		obj.ObjectID = uuid.New()
	}
	creator := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query := fmt.Sprintf(`
		INSERT INTO %s (object_id, kind, codename, table_name, presentation, config, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+objectColumns+`;`, qualified(schema, tableObjects))
	row := rm.conn().QueryRowContext(ctx, query,
		obj.ObjectID, obj.Kind, obj.Codename, obj.TableName, obj.Presentation, obj.Config, creator)
	created, errdb := scanObject(row.Scan)
	if errdb != nil {
		return mapPgError(ctx, errdb, "failed to insert object")
	}
	*obj = *created
	return nil
}

// GetObject retrieves a visible object by id.
func (rm *registryManager) GetObject(ctx context.Context, schema string, objectID uuid.UUID) (*models.Object, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+objectColumns+` FROM %s WHERE object_id = $1 AND `+visibleCond+`;`,
		qualified(schema, tableObjects))
	obj, err := scanObject(rm.conn().QueryRowContext(ctx, query, objectID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("object not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve object")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return obj, nil
}

// GetObjectByCodename retrieves a visible object by kind and codename.
func (rm *registryManager) GetObjectByCodename(ctx context.Context, schema string, kind mhcommon.ObjectKind, codename string) (*models.Object, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+objectColumns+` FROM %s WHERE kind = $1 AND codename = $2 AND `+visibleCond+`;`,
		qualified(schema, tableObjects))
	obj, err := scanObject(rm.conn().QueryRowContext(ctx, query, kind, codename).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("object not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve object")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return obj, nil
}

// ListObjects returns visible objects, optionally filtered by kind.
func (rm *registryManager) ListObjects(ctx context.Context, schema string, kind mhcommon.ObjectKind) ([]*models.Object, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	var rows *sql.Rows
	var errdb error
	if kind != "" {
		query := fmt.Sprintf(`SELECT `+objectColumns+` FROM %s WHERE kind = $1 AND `+visibleCond+` ORDER BY codename;`,
			qualified(schema, tableObjects))
		rows, errdb = rm.conn().QueryContext(ctx, query, kind)
	} else {
		query := fmt.Sprintf(`SELECT `+objectColumns+` FROM %s WHERE `+visibleCond+` ORDER BY kind, codename;`,
			qualified(schema, tableObjects))
		rows, errdb = rm.conn().QueryContext(ctx, query)
	}
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to list objects")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()
	return collectObjects(rows)
}

// ListObjectTrash returns objects deleted at the metahub level but still
// platform-live.
func (rm *registryManager) ListObjectTrash(ctx context.Context, schema string) ([]*models.Object, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+objectColumns+` FROM %s WHERE `+trashCond+` ORDER BY mh_deleted_at DESC;`,
		qualified(schema, tableObjects))
	rows, errdb := rm.conn().QueryContext(ctx, query)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to list object trash")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()
	return collectObjects(rows)
}

func collectObjects(rows *sql.Rows) ([]*models.Object, apperrors.Error) {
	var objects []*models.Object
	for rows.Next() {
		obj, err := scanObject(rows.Scan)
		if err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	return objects, nil
}

// UpdateObject applies a version-checked patch to the object row.
func (rm *registryManager) UpdateObject(ctx context.Context, schema string, objectID uuid.UUID, expectedVersion int, patch *Patch) (int, apperrors.Error) {
	return rm.UpdateWithVersionCheck(ctx, schema, tableObjects, "object_id", objectID, mhcommon.EntityTypeObject, expectedVersion, patch)
}

// SoftDeleteObject marks the object deleted at the metahub level. The
// platform tier is untouched, so the row remains recoverable from trash.
func (rm *registryManager) SoftDeleteObject(ctx context.Context, schema string, objectID uuid.UUID) apperrors.Error {
	return rm.softDeleteRow(ctx, schema, tableObjects, "object_id", objectID, "object")
}

// RestoreObject clears the metahub-level deletion, refusing when a visible
// object meanwhile claimed the same (kind, codename).
func (rm *registryManager) RestoreObject(ctx context.Context, schema string, objectID uuid.UUID) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	tx, errdb := rm.conn().BeginTx(ctx, &sql.TxOptions{})
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

	var kind, codename string
	query := fmt.Sprintf(`SELECT kind, codename FROM %s WHERE object_id = $1 AND `+trashCond+` FOR UPDATE;`,
		qualified(schema, tableObjects))
	errdb = tx.QueryRowContext(ctx, query, objectID).Scan(&kind, &codename)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			err = dberror.ErrNotFound.Msg("object not found in trash")
			return err
		}
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	var collision bool
	query = fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE kind = $1 AND codename = $2 AND `+visibleCond+`);`,
		qualified(schema, tableObjects))
	if errdb = tx.QueryRowContext(ctx, query, kind, codename).Scan(&collision); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if collision {
		log.Ctx(ctx).Info().Str("codename", codename).Msg("restore blocked by codename collision")
		err = dberror.ErrUniqueViolation.Msg("a visible object with this codename already exists")
		return err
	}

	query = fmt.Sprintf(`
		UPDATE %s SET mh_deleted = false, mh_deleted_at = NULL, mh_deleted_by = NULL, updated_at = now()
		WHERE object_id = $1;`, qualified(schema, tableObjects))
	if _, errdb = tx.ExecContext(ctx, query, objectID); errdb != nil {
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

// PermanentDeleteObject hard-deletes the object row and its dependent
// attribute, enumeration-value, and element rows. Callers must have already
// verified that no blocking references exist.
func (rm *registryManager) PermanentDeleteObject(ctx context.Context, schema string, objectID uuid.UUID) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	tx, errdb := rm.conn().BeginTx(ctx, &sql.TxOptions{})
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

	for _, dep := range []string{tableAttributes, tableEnumValues, tableElements} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE object_id = $1;`, qualified(schema, dep))
		if _, errdb := tx.ExecContext(ctx, query, objectID); errdb != nil {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
	}

	result, errdb := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE object_id = $1;`, qualified(schema, tableObjects)), objectID)
	if errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	rowsAffected, errdb := result.RowsAffected()
	if errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if rowsAffected == 0 {
		err = dberror.ErrNotFound.Msg("object not found")
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// softDeleteRow is the shared metahub-level soft delete.
func (rm *registryManager) softDeleteRow(ctx context.Context, schema, table, idCol string, id uuid.UUID, entityName string) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	_, userID, err := tenantAndUserFromContext(ctx)
	if err != nil {
		return err
	}
	deleter := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query := fmt.Sprintf(`
		UPDATE %s SET mh_deleted = true, mh_deleted_at = now(), mh_deleted_by = $2, updated_at = now()
		WHERE %s = $1 AND `+visibleCond+`;`, qualified(schema, table), idCol)
	result, errdb := rm.conn().ExecContext(ctx, query, id, deleter)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Str("table", table).Msg("failed to soft delete row")
		return dberror.ErrDatabase.Err(errdb)
	}
	rowsAffected, errdb := result.RowsAffected()
	if errdb != nil {
		return dberror.ErrDatabase.Err(errdb)
	}
	if rowsAffected == 0 {
		return dberror.ErrNotFound.Msg(entityName + " not found")
	}
	return nil
}
