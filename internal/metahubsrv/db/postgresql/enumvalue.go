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

const enumValueColumns = `value_id, object_id, codename, name, description, sort_order, is_default, ` + stateColumns

func scanEnumValue(scan func(dest ...any) error) (*models.EnumValue, error) {
	v := &models.EnumValue{}
	dest := []any{
		&v.ValueID, &v.ObjectID, &v.Codename, &v.Name, &v.Description, &v.SortOrder, &v.IsDefault,
	}
	dest = append(dest, stateScanDest(&v.State)...)
	if err := scan(dest...); err != nil {
		return nil, err
	}
	return v, nil
}

func loadEnumValuesTx(ctx context.Context, tx *sql.Tx, schema string, objectID uuid.UUID) ([]*models.EnumValue, apperrors.Error) {
	query := fmt.Sprintf(`SELECT `+enumValueColumns+` FROM %s WHERE object_id = $1 AND `+visibleCond+`
		ORDER BY sort_order, value_id;`, qualified(schema, tableEnumValues))
	rows, errdb := tx.QueryContext(ctx, query, objectID)
	if errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	var values []*models.EnumValue
	for rows.Next() {
		v, errdb := scanEnumValue(rows.Scan)
		if errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		values = append(values, v)
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return values, nil
}

func writeEnumOrders(ctx context.Context, tx *sql.Tx, schema string, changes []rowOrder) apperrors.Error {
	query := fmt.Sprintf(`UPDATE %s SET sort_order = $2, updated_at = now() WHERE value_id = $1;`,
		qualified(schema, tableEnumValues))
	for _, c := range changes {
		if _, errdb := tx.ExecContext(ctx, query, c.ID, c.Order); errdb != nil {
			return dberror.ErrDatabase.Err(errdb)
		}
	}
	return nil
}

func enumOrders(values []*models.EnumValue) []rowOrder {
	orders := make([]rowOrder, len(values))
	for i, v := range values {
		orders[i] = rowOrder{ID: v.ValueID, Order: v.SortOrder}
	}
	return orders
}

// demoteEnumDefault clears the default flag on every value of the
// enumeration except the one being promoted.
func demoteEnumDefault(ctx context.Context, tx *sql.Tx, schema string, objectID, keep uuid.UUID) apperrors.Error {
	query := fmt.Sprintf(`UPDATE %s SET is_default = false, updated_at = now()
		WHERE object_id = $1 AND value_id != $2 AND is_default AND `+visibleCond+`;`,
		qualified(schema, tableEnumValues))
	if _, errdb := tx.ExecContext(ctx, query, objectID, keep); errdb != nil {
		return dberror.ErrDatabase.Err(errdb)
	}
	return nil
}

// ListEnumValues returns the enumeration's values in order, repairing any
// gaps in the stored sequence on the way out.
func (rm *registryManager) ListEnumValues(ctx context.Context, schema string, objectID uuid.UUID) ([]*models.EnumValue, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	tx, errdb := rm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	var err apperrors.Error
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockObjectRow(ctx, tx, schema, objectID); err != nil {
		return nil, err
	}
	values, err := loadEnumValuesTx(ctx, tx, schema, objectID)
	if err != nil {
		return nil, err
	}
	changes := denseChanges(enumOrders(values))
	if err = writeEnumOrders(ctx, tx, schema, changes); err != nil {
		return nil, err
	}
	for i := range values {
		values[i].SortOrder = i + 1
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return nil, err
	}
	return values, nil
}

// GetEnumValue retrieves one visible enumeration value by id.
func (rm *registryManager) GetEnumValue(ctx context.Context, schema string, valueID uuid.UUID) (*models.EnumValue, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+enumValueColumns+` FROM %s WHERE value_id = $1 AND `+visibleCond+`;`,
		qualified(schema, tableEnumValues))
	v, errdb := scanEnumValue(rm.conn().QueryRowContext(ctx, query, valueID).Scan)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("enumeration value not found")
		}
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to retrieve enumeration value")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return v, nil
}

// CreateEnumValue inserts a value, demoting the enumeration's current default
// in the same transaction when the new value claims the flag. Sort order
// defaults to the end of the list.
func (rm *registryManager) CreateEnumValue(ctx context.Context, schema string, value *models.EnumValue) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	_, userID, err := tenantAndUserFromContext(ctx)
	if err != nil {
		return err
	}
	if value.ValueID == uuid.Nil {
		value.ValueID = uuid.New()
	}

	tx, errdb := rm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return dberror.ErrDatabase.Err(errdb)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockObjectRow(ctx, tx, schema, value.ObjectID); err != nil {
		return err
	}
	if value.IsDefault {
		if err = demoteEnumDefault(ctx, tx, schema, value.ObjectID, value.ValueID); err != nil {
			return err
		}
	}
	if value.SortOrder == 0 {
		query := fmt.Sprintf(`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM %s WHERE object_id = $1 AND `+visibleCond+`;`,
			qualified(schema, tableEnumValues))
		if errdb = tx.QueryRowContext(ctx, query, value.ObjectID).Scan(&value.SortOrder); errdb != nil {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
	}

	creator := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query := fmt.Sprintf(`
		INSERT INTO %s (value_id, object_id, codename, name, description, sort_order, is_default, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+enumValueColumns+`;`, qualified(schema, tableEnumValues))
	row := tx.QueryRowContext(ctx, query,
		value.ValueID, value.ObjectID, value.Codename, value.Name, value.Description,
		value.SortOrder, value.IsDefault, creator)
	created, errdb := scanEnumValue(row.Scan)
	if errdb != nil {
		err = mapPgError(ctx, errdb, "failed to insert enumeration value")
		return err
	}
	*value = *created

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// UpdateEnumValue applies a version-checked patch. Promoting the value to
// default demotes the current default first; an explicit sort_order change
// renumbers the whole list afterwards, both inside the same transaction.
func (rm *registryManager) UpdateEnumValue(ctx context.Context, schema string, objectID, valueID uuid.UUID, expectedVersion int, patch *Patch) (int, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return 0, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	tx, errdb := rm.conn().BeginTx(ctx, &sql.TxOptions{})
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return 0, dberror.ErrDatabase.Err(errdb)
	}
	var err apperrors.Error
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockObjectRow(ctx, tx, schema, objectID); err != nil {
		return 0, err
	}
	if v, ok := patch.Value("is_default"); ok {
		if becomesDefault, _ := v.(bool); becomesDefault {
			if err = demoteEnumDefault(ctx, tx, schema, objectID, valueID); err != nil {
				return 0, err
			}
		}
	}

	newVersion, err := rm.updateWithVersionCheckTx(ctx, tx, schema, tableEnumValues, "value_id", valueID, mhcommon.EntityTypeEnumValue, expectedVersion, patch)
	if err != nil {
		return 0, err
	}

	if patch.Has("sort_order") {
		values, lerr := loadEnumValuesTx(ctx, tx, schema, objectID)
		if lerr != nil {
			err = lerr
			return 0, err
		}
		if err = writeEnumOrders(ctx, tx, schema, denseChanges(enumOrders(values))); err != nil {
			return 0, err
		}
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return 0, err
	}
	return newVersion, nil
}

// MoveEnumValue splices the value one step up or down the enumeration's
// ordered list and rewrites only the rows whose order actually changed.
func (rm *registryManager) MoveEnumValue(ctx context.Context, schema string, objectID, valueID uuid.UUID, direction mhcommon.MoveDirection) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	if !direction.IsValid() {
		return dberror.ErrInvalidInput.Msg("invalid move direction")
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

	if err = lockObjectRow(ctx, tx, schema, objectID); err != nil {
		return err
	}
	values, err := loadEnumValuesTx(ctx, tx, schema, objectID)
	if err != nil {
		return err
	}
	orders := enumOrders(values)
	idx := indexOf(orders, valueID)
	if idx < 0 {
		err = dberror.ErrNotFound.Msg("enumeration value not found")
		return err
	}
	if to := neighborIndex(idx, len(orders), direction); to >= 0 {
		orders = splice(orders, idx, to)
	}
	if err = writeEnumOrders(ctx, tx, schema, denseChanges(orders)); err != nil {
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// SoftDeleteEnumValue marks the value deleted at the metahub level.
func (rm *registryManager) SoftDeleteEnumValue(ctx context.Context, schema string, valueID uuid.UUID) apperrors.Error {
	return rm.softDeleteRow(ctx, schema, tableEnumValues, "value_id", valueID, "enumeration value")
}

// RestoreEnumValue clears the metahub-level deletion, refusing when a visible
// value of the same enumeration meanwhile claimed the codename.
func (rm *registryManager) RestoreEnumValue(ctx context.Context, schema string, valueID uuid.UUID) apperrors.Error {
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

	var objectID uuid.UUID
	var codename string
	query := fmt.Sprintf(`SELECT object_id, codename FROM %s WHERE value_id = $1 AND `+trashCond+` FOR UPDATE;`,
		qualified(schema, tableEnumValues))
	errdb = tx.QueryRowContext(ctx, query, valueID).Scan(&objectID, &codename)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			err = dberror.ErrNotFound.Msg("enumeration value not found in trash")
			return err
		}
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	var collision bool
	query = fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE object_id = $1 AND codename = $2 AND `+visibleCond+`);`,
		qualified(schema, tableEnumValues))
	if errdb = tx.QueryRowContext(ctx, query, objectID, codename).Scan(&collision); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if collision {
		err = dberror.ErrUniqueViolation.Msg("a visible value with this codename already exists")
		return err
	}

	// A restored value never reclaims the default flag; another value may
	// have taken it in the meantime.
	query = fmt.Sprintf(`
		UPDATE %s SET mh_deleted = false, mh_deleted_at = NULL, mh_deleted_by = NULL, is_default = false, updated_at = now()
		WHERE value_id = $1;`, qualified(schema, tableEnumValues))
	if _, errdb = tx.ExecContext(ctx, query, valueID); errdb != nil {
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

// PermanentDeleteEnumValue hard-deletes the row. Callers are expected to have
// checked reference blockers first.
func (rm *registryManager) PermanentDeleteEnumValue(ctx context.Context, schema string, valueID uuid.UUID) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE value_id = $1;`, qualified(schema, tableEnumValues))
	result, errdb := rm.conn().ExecContext(ctx, query, valueID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to delete enumeration value")
		return dberror.ErrDatabase.Err(errdb)
	}
	rows, errdb := result.RowsAffected()
	if errdb != nil {
		return dberror.ErrDatabase.Err(errdb)
	}
	if rows == 0 {
		return dberror.ErrNotFound.Msg("enumeration value not found")
	}
	return nil
}
