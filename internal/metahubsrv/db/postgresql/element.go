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

const elementColumns = `element_id, object_id, data, sort_order, owner_id, ` + stateColumns

func scanElement(scan func(dest ...any) error) (*models.Element, error) {
	e := &models.Element{}
	dest := []any{&e.ElementID, &e.ObjectID, &e.Data, &e.SortOrder, &e.OwnerID}
	dest = append(dest, stateScanDest(&e.State)...)
	if err := scan(dest...); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateElement inserts a predefined data record for a catalog object.
// Payload validation against the attribute set happens in the element store
// above this layer.
func (rm *registryManager) CreateElement(ctx context.Context, schema string, element *models.Element) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	_, userID, err := tenantAndUserFromContext(ctx)
	if err != nil {
		return err
	}
	if element.ElementID == uuid.Nil {
		element.ElementID = uuid.New()
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

	if err = lockObjectRow(ctx, tx, schema, element.ObjectID); err != nil {
		return err
	}
	if element.SortOrder == 0 {
		query := fmt.Sprintf(`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM %s WHERE object_id = $1 AND `+visibleCond+`;`,
			qualified(schema, tableElements))
		if errdb = tx.QueryRowContext(ctx, query, element.ObjectID).Scan(&element.SortOrder); errdb != nil {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
	}

	creator := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query := fmt.Sprintf(`
		INSERT INTO %s (element_id, object_id, data, sort_order, owner_id, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+elementColumns+`;`, qualified(schema, tableElements))
	row := tx.QueryRowContext(ctx, query,
		element.ElementID, element.ObjectID, element.Data, element.SortOrder, element.OwnerID, creator)
	created, errdb := scanElement(row.Scan)
	if errdb != nil {
		err = mapPgError(ctx, errdb, "failed to insert element")
		return err
	}
	*element = *created

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// GetElement retrieves a visible element by id.
func (rm *registryManager) GetElement(ctx context.Context, schema string, elementID uuid.UUID) (*models.Element, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+elementColumns+` FROM %s WHERE element_id = $1 AND `+visibleCond+`;`,
		qualified(schema, tableElements))
	e, errdb := scanElement(rm.conn().QueryRowContext(ctx, query, elementID).Scan)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("element not found")
		}
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to retrieve element")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return e, nil
}

// ListElements returns all visible elements of an object in sort order.
func (rm *registryManager) ListElements(ctx context.Context, schema string, objectID uuid.UUID) ([]*models.Element, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+elementColumns+` FROM %s WHERE object_id = $1 AND `+visibleCond+`
		ORDER BY sort_order, element_id;`, qualified(schema, tableElements))
	rows, errdb := rm.conn().QueryContext(ctx, query, objectID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to list elements")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	var elements []*models.Element
	for rows.Next() {
		e, errdb := scanElement(rows.Scan)
		if errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		elements = append(elements, e)
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return elements, nil
}

// UpdateElement applies a version-checked patch to the element row.
func (rm *registryManager) UpdateElement(ctx context.Context, schema string, elementID uuid.UUID, expectedVersion int, patch *Patch) (int, apperrors.Error) {
	return rm.UpdateWithVersionCheck(ctx, schema, tableElements, "element_id", elementID, mhcommon.EntityTypeElement, expectedVersion, patch)
}

// MoveElement renormalizes the object's element ordering and swaps the
// element with its neighbor in the requested direction.
func (rm *registryManager) MoveElement(ctx context.Context, schema string, objectID, elementID uuid.UUID, direction mhcommon.MoveDirection) apperrors.Error {
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
	query := fmt.Sprintf(`SELECT element_id, sort_order FROM %s WHERE object_id = $1 AND `+visibleCond+`
		ORDER BY sort_order, element_id;`, qualified(schema, tableElements))
	rows, errdb := tx.QueryContext(ctx, query, objectID)
	if errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	var orders []rowOrder
	for rows.Next() {
		var r rowOrder
		if errdb := rows.Scan(&r.ID, &r.Order); errdb != nil {
			rows.Close()
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
		orders = append(orders, r)
	}
	rows.Close()
	if errdb := rows.Err(); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	idx := indexOf(orders, elementID)
	if idx < 0 {
		err = dberror.ErrNotFound.Msg("element not found")
		return err
	}
	if nIdx := neighborIndex(idx, len(orders), direction); nIdx >= 0 {
		orders[idx], orders[nIdx] = orders[nIdx], orders[idx]
	}
	update := fmt.Sprintf(`UPDATE %s SET sort_order = $2, updated_at = now() WHERE element_id = $1;`,
		qualified(schema, tableElements))
	for _, c := range denseChanges(orders) {
		if _, errdb := tx.ExecContext(ctx, update, c.ID, c.Order); errdb != nil {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// SoftDeleteElement marks the element deleted at the metahub level.
func (rm *registryManager) SoftDeleteElement(ctx context.Context, schema string, elementID uuid.UUID) apperrors.Error {
	return rm.softDeleteRow(ctx, schema, tableElements, "element_id", elementID, "element")
}

// RestoreElement clears the metahub-level deletion. Elements carry no
// codename, so there is no collision to guard against.
func (rm *registryManager) RestoreElement(ctx context.Context, schema string, elementID uuid.UUID) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`
		UPDATE %s SET mh_deleted = false, mh_deleted_at = NULL, mh_deleted_by = NULL, updated_at = now()
		WHERE element_id = $1 AND `+trashCond+`;`, qualified(schema, tableElements))
	result, errdb := rm.conn().ExecContext(ctx, query, elementID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to restore element")
		return dberror.ErrDatabase.Err(errdb)
	}
	rows, errdb := result.RowsAffected()
	if errdb != nil {
		return dberror.ErrDatabase.Err(errdb)
	}
	if rows == 0 {
		return dberror.ErrNotFound.Msg("element not found in trash")
	}
	return nil
}

// PermanentDeleteElement hard-deletes the row.
func (rm *registryManager) PermanentDeleteElement(ctx context.Context, schema string, elementID uuid.UUID) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE element_id = $1;`, qualified(schema, tableElements))
	result, errdb := rm.conn().ExecContext(ctx, query, elementID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to delete element")
		return dberror.ErrDatabase.Err(errdb)
	}
	rows, errdb := result.RowsAffected()
	if errdb != nil {
		return dberror.ErrDatabase.Err(errdb)
	}
	if rows == 0 {
		return dberror.ErrNotFound.Msg("element not found")
	}
	return nil
}
