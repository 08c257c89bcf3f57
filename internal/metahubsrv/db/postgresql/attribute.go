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

const attributeColumns = `attribute_id, object_id, codename, data_type, is_required, is_display, ` +
	`target_object_id, target_object_kind, parent_attribute_id, sort_order, validation_rules, ui_config, ` + stateColumns

func scanAttribute(scan func(dest ...any) error) (*models.Attribute, error) {
	attr := &models.Attribute{}
	dest := []any{
		&attr.AttributeID, &attr.ObjectID, &attr.Codename, &attr.DataType, &attr.IsRequired, &attr.IsDisplay,
		&attr.TargetObjectID, &attr.TargetObjectKind, &attr.ParentAttributeID, &attr.SortOrder,
		&attr.ValidationRules, &attr.UIConfig,
	}
	dest = append(dest, stateScanDest(&attr.State)...)
	if err := scan(dest...); err != nil {
		return nil, err
	}
	return attr, nil
}

// lockObjectRow takes a row lock on the owning object, serializing every
// multi-row attribute mutation for that object.
func lockObjectRow(ctx context.Context, tx *sql.Tx, schema string, objectID uuid.UUID) apperrors.Error {
	query := fmt.Sprintf(`SELECT object_id FROM %s WHERE object_id = $1 AND `+visibleCond+` FOR UPDATE;`,
		qualified(schema, tableObjects))
	var id uuid.UUID
	if err := tx.QueryRowContext(ctx, query, objectID).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return dberror.ErrNotFound.Msg("object not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to lock object row")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// CreateAttribute inserts a new attribute definition, enforcing the
// hierarchy rules: a parent must be a visible TABLE attribute with capacity,
// TABLE attributes never nest, at most 10 TABLE attributes per catalog, and
// TABLE attribute ids are pre-generated so their 12-hex prefix is unique
// among sibling TABLE attributes.
func (rm *registryManager) CreateAttribute(ctx context.Context, schema string, attr *models.Attribute) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	_, userID, err := tenantAndUserFromContext(ctx)
	if err != nil {
		return err
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

	if err = lockObjectRow(ctx, tx, schema, attr.ObjectID); err != nil {
		return err
	}

	if attr.ParentAttributeID.Valid {
		if attr.DataType == mhcommon.DataTypeTable {
			err = dberror.ErrInvariantViolation.Msg("TABLE attributes cannot be nested")
			return err
		}
		var parentType mhcommon.DataType
		var parentOfParent uuid.NullUUID
		query := fmt.Sprintf(`SELECT data_type, parent_attribute_id FROM %s WHERE attribute_id = $1 AND object_id = $2 AND `+visibleCond+`;`,
			qualified(schema, tableAttributes))
		errdb = tx.QueryRowContext(ctx, query, attr.ParentAttributeID.UUID, attr.ObjectID).Scan(&parentType, &parentOfParent)
		if errdb != nil {
			if errdb == sql.ErrNoRows {
				err = dberror.ErrNotFound.Msg("parent attribute not found")
				return err
			}
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
		if parentType != mhcommon.DataTypeTable {
			err = dberror.ErrValidationFailed.Msg("parent attribute is not TABLE-typed")
			return err
		}
		if parentOfParent.Valid {
			err = dberror.ErrInvariantViolation.Msg("attributes cannot nest below a TABLE child")
			return err
		}
		var children int
		query = fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE parent_attribute_id = $1 AND `+visibleCond+`;`,
			qualified(schema, tableAttributes))
		if errdb = tx.QueryRowContext(ctx, query, attr.ParentAttributeID.UUID).Scan(&children); errdb != nil {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
		if children >= mhcommon.MaxChildrenPerTable {
			err = dberror.ErrInvariantViolation.Msg(fmt.Sprintf("TABLE attribute already has %d children", mhcommon.MaxChildrenPerTable))
			return err
		}
	}

	if attr.DataType == mhcommon.DataTypeTable {
		var tables int
		query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE object_id = $1 AND data_type = $2 AND `+visibleCond+`;`,
			qualified(schema, tableAttributes))
		if errdb = tx.QueryRowContext(ctx, query, attr.ObjectID, mhcommon.DataTypeTable).Scan(&tables); errdb != nil {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
		if tables >= mhcommon.MaxTableAttributesPerCatalog {
			err = dberror.ErrInvariantViolation.Msg(fmt.Sprintf("catalog already has %d TABLE attributes", mhcommon.MaxTableAttributesPerCatalog))
			return err
		}
		id, genErr := rm.generateTableAttributeID(ctx, tx, schema, attr.ObjectID)
		if genErr != nil {
			err = genErr
			return err
		}
		attr.AttributeID = id
	} else if attr.AttributeID == uuid.Nil {
		attr.AttributeID = uuid.New()
	}

	if attr.SortOrder == 0 {
		query := fmt.Sprintf(`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM %s WHERE object_id = $1 AND parent_attribute_id IS NOT DISTINCT FROM $2 AND `+visibleCond+`;`,
			qualified(schema, tableAttributes))
		if errdb = tx.QueryRowContext(ctx, query, attr.ObjectID, attr.ParentAttributeID).Scan(&attr.SortOrder); errdb != nil {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
	}

	creator := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query := fmt.Sprintf(`
		INSERT INTO %s (attribute_id, object_id, codename, data_type, is_required, is_display,
			target_object_id, target_object_kind, parent_attribute_id, sort_order, validation_rules, ui_config,
			created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING `+attributeColumns+`;`, qualified(schema, tableAttributes))
	row := tx.QueryRowContext(ctx, query,
		attr.AttributeID, attr.ObjectID, attr.Codename, attr.DataType, attr.IsRequired, attr.IsDisplay,
		attr.TargetObjectID, attr.TargetObjectKind, attr.ParentAttributeID, attr.SortOrder,
		attr.ValidationRules, attr.UIConfig, creator)
	created, errdb := scanAttribute(row.Scan)
	if errdb != nil {
		err = mapPgError(ctx, errdb, "failed to insert attribute")
		return err
	}
	*attr = *created

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// generateTableAttributeID draws UUIDs until one whose 12-hex prefix is not
// already used by another TABLE attribute of the same catalog. The prefix
// feeds derived physical identifiers downstream, so it must be unique without
// a second round trip. Platform-deleted rows are ignored; metahub-deleted
// ones still count, since they can be restored.
func (rm *registryManager) generateTableAttributeID(ctx context.Context, tx *sql.Tx, schema string, objectID uuid.UUID) (uuid.UUID, apperrors.Error) {
	query := fmt.Sprintf(`SELECT attribute_id FROM %s WHERE object_id = $1 AND data_type = $2 AND NOT is_deleted;`,
		qualified(schema, tableAttributes))
	rows, errdb := tx.QueryContext(ctx, query, objectID, mhcommon.DataTypeTable)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to list sibling TABLE attributes")
		return uuid.Nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	used := make(map[string]bool)
	for rows.Next() {
		var id uuid.UUID
		if errdb := rows.Scan(&id); errdb != nil {
			return uuid.Nil, dberror.ErrDatabase.Err(errdb)
		}
		used[uuid.HexPrefix(id, mhcommon.TableAttributeIDPrefixLen)] = true
	}
	if errdb := rows.Err(); errdb != nil {
		return uuid.Nil, dberror.ErrDatabase.Err(errdb)
	}

	for attempt := 0; attempt < mhcommon.TableAttributeIDMaxAttempts; attempt++ {
		id := uuid.New()
		if !used[uuid.HexPrefix(id, mhcommon.TableAttributeIDPrefixLen)] {
			return id, nil
		}
	}
	log.Ctx(ctx).Error().Str("object_id", objectID.String()).Msg("exhausted attempts generating TABLE attribute id")
	return uuid.Nil, dberror.ErrDatabase.Msg("could not generate a unique TABLE attribute id")
}

// GetAttribute retrieves a visible attribute by id.
func (rm *registryManager) GetAttribute(ctx context.Context, schema string, attributeID uuid.UUID) (*models.Attribute, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+attributeColumns+` FROM %s WHERE attribute_id = $1 AND `+visibleCond+`;`,
		qualified(schema, tableAttributes))
	attr, err := scanAttribute(rm.conn().QueryRowContext(ctx, query, attributeID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("attribute not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve attribute")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return attr, nil
}

// ListAttributes returns all visible attributes of an object, roots first,
// ordered by sort order within each sibling scope.
func (rm *registryManager) ListAttributes(ctx context.Context, schema string, objectID uuid.UUID) ([]*models.Attribute, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+attributeColumns+` FROM %s WHERE object_id = $1 AND `+visibleCond+`
		ORDER BY parent_attribute_id NULLS FIRST, sort_order, attribute_id;`,
		qualified(schema, tableAttributes))
	rows, errdb := rm.conn().QueryContext(ctx, query, objectID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to list attributes")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	var attrs []*models.Attribute
	for rows.Next() {
		attr, err := scanAttribute(rows.Scan)
		if err != nil {
			return nil, dberror.ErrDatabase.Err(err)
		}
		attrs = append(attrs, attr)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	return attrs, nil
}

// UpdateAttribute applies a version-checked patch to the attribute row.
func (rm *registryManager) UpdateAttribute(ctx context.Context, schema string, attributeID uuid.UUID, expectedVersion int, patch *Patch) (int, apperrors.Error) {
	return rm.UpdateWithVersionCheck(ctx, schema, tableAttributes, "attribute_id", attributeID, mhcommon.EntityTypeAttribute, expectedVersion, patch)
}

// SoftDeleteAttribute marks the attribute deleted at the metahub level.
// Children of a deleted TABLE attribute are cascaded in the same statement.
func (rm *registryManager) SoftDeleteAttribute(ctx context.Context, schema string, attributeID uuid.UUID) apperrors.Error {
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
		WHERE (attribute_id = $1 OR parent_attribute_id = $1) AND `+visibleCond+`;`,
		qualified(schema, tableAttributes))
	result, errdb := rm.conn().ExecContext(ctx, query, attributeID, deleter)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to soft delete attribute")
		return dberror.ErrDatabase.Err(errdb)
	}
	rowsAffected, errdb := result.RowsAffected()
	if errdb != nil {
		return dberror.ErrDatabase.Err(errdb)
	}
	if rowsAffected == 0 {
		return dberror.ErrNotFound.Msg("attribute not found")
	}
	return nil
}

// RestoreAttribute clears the metahub-level deletion, refusing when a
// visible attribute of the same object meanwhile claimed the codename.
func (rm *registryManager) RestoreAttribute(ctx context.Context, schema string, attributeID uuid.UUID) apperrors.Error {
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
	query := fmt.Sprintf(`SELECT object_id, codename FROM %s WHERE attribute_id = $1 AND `+trashCond+` FOR UPDATE;`,
		qualified(schema, tableAttributes))
	errdb = tx.QueryRowContext(ctx, query, attributeID).Scan(&objectID, &codename)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			err = dberror.ErrNotFound.Msg("attribute not found in trash")
			return err
		}
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	var collision bool
	query = fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE object_id = $1 AND codename = $2 AND `+visibleCond+`);`,
		qualified(schema, tableAttributes))
	if errdb = tx.QueryRowContext(ctx, query, objectID, codename).Scan(&collision); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if collision {
		err = dberror.ErrUniqueViolation.Msg("a visible attribute with this codename already exists")
		return err
	}

	query = fmt.Sprintf(`
		UPDATE %s SET mh_deleted = false, mh_deleted_at = NULL, mh_deleted_by = NULL, updated_at = now()
		WHERE attribute_id = $1;`, qualified(schema, tableAttributes))
	if _, errdb = tx.ExecContext(ctx, query, attributeID); errdb != nil {
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

// loadSiblingScope returns the attribute's sibling scope (root attributes of
// the object, or children of the same TABLE parent) in stored order.
func loadSiblingScope(ctx context.Context, tx *sql.Tx, schema string, objectID uuid.UUID, parent uuid.NullUUID) ([]rowOrder, apperrors.Error) {
	query := fmt.Sprintf(`SELECT attribute_id, sort_order FROM %s
		WHERE object_id = $1 AND parent_attribute_id IS NOT DISTINCT FROM $2 AND `+visibleCond+`
		ORDER BY sort_order, attribute_id;`, qualified(schema, tableAttributes))
	rows, errdb := tx.QueryContext(ctx, query, objectID, parent)
	if errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	var scope []rowOrder
	for rows.Next() {
		var r rowOrder
		if errdb := rows.Scan(&r.ID, &r.Order); errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		scope = append(scope, r)
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return scope, nil
}

func writeAttributeOrders(ctx context.Context, tx *sql.Tx, schema string, changes []rowOrder) apperrors.Error {
	query := fmt.Sprintf(`UPDATE %s SET sort_order = $2, updated_at = now() WHERE attribute_id = $1;`,
		qualified(schema, tableAttributes))
	for _, c := range changes {
		if _, errdb := tx.ExecContext(ctx, query, c.ID, c.Order); errdb != nil {
			return dberror.ErrDatabase.Err(errdb)
		}
	}
	return nil
}

// MoveAttribute renormalizes the sibling scope to a dense 1..N sequence and
// then swaps the attribute with its neighbor in the requested direction.
// A move off either end is a no-op after the self-heal.
func (rm *registryManager) MoveAttribute(ctx context.Context, schema string, objectID, attributeID uuid.UUID, direction mhcommon.MoveDirection) apperrors.Error {
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

	var parent uuid.NullUUID
	query := fmt.Sprintf(`SELECT parent_attribute_id FROM %s WHERE attribute_id = $1 AND object_id = $2 AND `+visibleCond+`;`,
		qualified(schema, tableAttributes))
	errdb = tx.QueryRowContext(ctx, query, attributeID, objectID).Scan(&parent)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			err = dberror.ErrNotFound.Msg("attribute not found")
			return err
		}
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	scope, err := loadSiblingScope(ctx, tx, schema, objectID, parent)
	if err != nil {
		return err
	}

	idx := indexOf(scope, attributeID)
	if nIdx := neighborIndex(idx, len(scope), direction); nIdx >= 0 {
		scope[idx], scope[nIdx] = scope[nIdx], scope[idx]
	}
	// denseChanges also heals any historical gaps in the sequence.
	if err = writeAttributeOrders(ctx, tx, schema, denseChanges(scope)); err != nil {
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// SetDisplayAttribute makes the target the sole display attribute of its
// sibling scope, forcing it required. TABLE attributes can never be the
// display attribute.
func (rm *registryManager) SetDisplayAttribute(ctx context.Context, schema string, objectID, attributeID uuid.UUID) apperrors.Error {
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

	if err = lockObjectRow(ctx, tx, schema, objectID); err != nil {
		return err
	}

	var dataType mhcommon.DataType
	var parent uuid.NullUUID
	query := fmt.Sprintf(`SELECT data_type, parent_attribute_id FROM %s WHERE attribute_id = $1 AND object_id = $2 AND `+visibleCond+`;`,
		qualified(schema, tableAttributes))
	errdb = tx.QueryRowContext(ctx, query, attributeID, objectID).Scan(&dataType, &parent)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			err = dberror.ErrNotFound.Msg("attribute not found")
			return err
		}
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if dataType == mhcommon.DataTypeTable {
		err = dberror.ErrInvariantViolation.Msg("a TABLE attribute cannot be the display attribute")
		return err
	}

	query = fmt.Sprintf(`UPDATE %s SET is_display = false, updated_at = now()
		WHERE object_id = $1 AND parent_attribute_id IS NOT DISTINCT FROM $2 AND attribute_id != $3 AND is_display AND `+visibleCond+`;`,
		qualified(schema, tableAttributes))
	if _, errdb = tx.ExecContext(ctx, query, objectID, parent, attributeID); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	query = fmt.Sprintf(`UPDATE %s SET is_display = true, is_required = true, updated_at = now()
		WHERE attribute_id = $1;`, qualified(schema, tableAttributes))
	if _, errdb = tx.ExecContext(ctx, query, attributeID); errdb != nil {
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

// ClearDisplayAttribute removes the display flag from the target, rejecting
// the call when that would leave its sibling scope without any display
// attribute.
func (rm *registryManager) ClearDisplayAttribute(ctx context.Context, schema string, objectID, attributeID uuid.UUID) apperrors.Error {
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

	if err = lockObjectRow(ctx, tx, schema, objectID); err != nil {
		return err
	}

	var parent uuid.NullUUID
	var isDisplay bool
	query := fmt.Sprintf(`SELECT parent_attribute_id, is_display FROM %s WHERE attribute_id = $1 AND object_id = $2 AND `+visibleCond+`;`,
		qualified(schema, tableAttributes))
	errdb = tx.QueryRowContext(ctx, query, attributeID, objectID).Scan(&parent, &isDisplay)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			err = dberror.ErrNotFound.Msg("attribute not found")
			return err
		}
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if !isDisplay {
		tx.Rollback()
		return nil
	}

	var others int
	query = fmt.Sprintf(`SELECT COUNT(*) FROM %s
		WHERE object_id = $1 AND parent_attribute_id IS NOT DISTINCT FROM $2 AND attribute_id != $3 AND is_display AND `+visibleCond+`;`,
		qualified(schema, tableAttributes))
	if errdb = tx.QueryRowContext(ctx, query, objectID, parent, attributeID).Scan(&others); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if others == 0 {
		err = dberror.ErrInvariantViolation.Msg("cannot remove the last display attribute in this scope")
		return err
	}

	query = fmt.Sprintf(`UPDATE %s SET is_display = false, updated_at = now() WHERE attribute_id = $1;`,
		qualified(schema, tableAttributes))
	if _, errdb = tx.ExecContext(ctx, query, attributeID); errdb != nil {
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
