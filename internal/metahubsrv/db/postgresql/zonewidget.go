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

const zoneWidgetColumns = `widget_id, layout_id, widget_key, zone, sort_order, config, ` + stateColumns

func scanZoneWidget(scan func(dest ...any) error) (*models.ZoneWidget, error) {
	w := &models.ZoneWidget{}
	dest := []any{&w.WidgetID, &w.LayoutID, &w.WidgetKey, &w.Zone, &w.SortOrder, &w.Config}
	dest = append(dest, stateScanDest(&w.State)...)
	if err := scan(dest...); err != nil {
		return nil, err
	}
	return w, nil
}

// zoneOrders returns the visible widgets of one zone in stored order.
func zoneOrders(ctx context.Context, tx *sql.Tx, schema string, layoutID uuid.UUID, zone string) ([]rowOrder, apperrors.Error) {
	query := fmt.Sprintf(`SELECT widget_id, sort_order FROM %s
		WHERE layout_id = $1 AND zone = $2 AND `+visibleCond+` ORDER BY sort_order, widget_id;`,
		qualified(schema, tableZoneWidgets))
	rows, errdb := tx.QueryContext(ctx, query, layoutID, zone)
	if errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	var orders []rowOrder
	for rows.Next() {
		var r rowOrder
		if errdb := rows.Scan(&r.ID, &r.Order); errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		orders = append(orders, r)
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return orders, nil
}

func writeWidgetOrders(ctx context.Context, tx *sql.Tx, schema string, changes []rowOrder) apperrors.Error {
	query := fmt.Sprintf(`UPDATE %s SET sort_order = $2, updated_at = now() WHERE widget_id = $1;`,
		qualified(schema, tableZoneWidgets))
	for _, c := range changes {
		if _, errdb := tx.ExecContext(ctx, query, c.ID, c.Order); errdb != nil {
			return dberror.ErrDatabase.Err(errdb)
		}
	}
	return nil
}

func normalizeZone(ctx context.Context, tx *sql.Tx, schema string, layoutID uuid.UUID, zone string) apperrors.Error {
	orders, err := zoneOrders(ctx, tx, schema, layoutID, zone)
	if err != nil {
		return err
	}
	return writeWidgetOrders(ctx, tx, schema, denseChanges(orders))
}

// ListZoneWidgets returns all visible widgets of a layout, grouped by zone in
// sort order.
func (rm *registryManager) ListZoneWidgets(ctx context.Context, schema string, layoutID uuid.UUID) ([]*models.ZoneWidget, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+zoneWidgetColumns+` FROM %s WHERE layout_id = $1 AND `+visibleCond+`
		ORDER BY zone, sort_order, widget_id;`, qualified(schema, tableZoneWidgets))
	rows, errdb := rm.conn().QueryContext(ctx, query, layoutID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to list zone widgets")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	var widgets []*models.ZoneWidget
	for rows.Next() {
		w, errdb := scanZoneWidget(rows.Scan)
		if errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		widgets = append(widgets, w)
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return widgets, nil
}

// AssignZoneWidget places a widget key into a zone of the layout. For
// single-instance keys an existing row is relocated instead of duplicated,
// renormalizing both the vacated and destination zones. The widget-key and
// allowed-zone validation happens in the layout engine above this layer;
// multiInstance carries the key's registered behavior down.
func (rm *registryManager) AssignZoneWidget(ctx context.Context, schema string, widget *models.ZoneWidget, multiInstance bool) apperrors.Error {
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

	if _, _, err = lockLayoutRow(ctx, tx, schema, widget.LayoutID); err != nil {
		return err
	}

	var existingID uuid.UUID
	var existingZone string
	relocate := false
	if !multiInstance {
		query := fmt.Sprintf(`SELECT widget_id, zone FROM %s
			WHERE layout_id = $1 AND widget_key = $2 AND `+visibleCond+` LIMIT 1;`,
			qualified(schema, tableZoneWidgets))
		errdb = tx.QueryRowContext(ctx, query, widget.LayoutID, widget.WidgetKey).Scan(&existingID, &existingZone)
		if errdb != nil && errdb != sql.ErrNoRows {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
		relocate = errdb == nil
	}

	var destEnd int
	query := fmt.Sprintf(`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM %s
		WHERE layout_id = $1 AND zone = $2 AND `+visibleCond+`;`, qualified(schema, tableZoneWidgets))
	if errdb = tx.QueryRowContext(ctx, query, widget.LayoutID, widget.Zone).Scan(&destEnd); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	if relocate {
		query = fmt.Sprintf(`UPDATE %s SET zone = $2, sort_order = $3, config = $4, updated_at = now()
			WHERE widget_id = $1 RETURNING `+zoneWidgetColumns+`;`, qualified(schema, tableZoneWidgets))
		row := tx.QueryRowContext(ctx, query, existingID, widget.Zone, destEnd, widget.Config)
		moved, errdb := scanZoneWidget(row.Scan)
		if errdb != nil {
			err = mapPgError(ctx, errdb, "failed to relocate zone widget")
			return err
		}
		*widget = *moved
		if existingZone != widget.Zone {
			if err = normalizeZone(ctx, tx, schema, widget.LayoutID, existingZone); err != nil {
				return err
			}
		}
	} else {
		if widget.WidgetID == uuid.Nil {
			widget.WidgetID = uuid.New()
		}
		creator := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
		query = fmt.Sprintf(`
			INSERT INTO %s (widget_id, layout_id, widget_key, zone, sort_order, config, created_by, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			RETURNING `+zoneWidgetColumns+`;`, qualified(schema, tableZoneWidgets))
		row := tx.QueryRowContext(ctx, query,
			widget.WidgetID, widget.LayoutID, widget.WidgetKey, widget.Zone, destEnd, widget.Config, creator)
		created, errdb := scanZoneWidget(row.Scan)
		if errdb != nil {
			err = mapPgError(ctx, errdb, "failed to insert zone widget")
			return err
		}
		*widget = *created
	}

	if err = normalizeZone(ctx, tx, schema, widget.LayoutID, widget.Zone); err != nil {
		return err
	}
	if err = resyncLayoutConfigTx(ctx, tx, schema, widget.LayoutID); err != nil {
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// MoveZoneWidget relocates a widget to targetZone at targetIndex, clamping
// the index into the destination zone's bounds and renormalizing both zones.
func (rm *registryManager) MoveZoneWidget(ctx context.Context, schema string, layoutID, widgetID uuid.UUID, targetZone string, targetIndex int) apperrors.Error {
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

	if _, _, err = lockLayoutRow(ctx, tx, schema, layoutID); err != nil {
		return err
	}

	var sourceZone string
	query := fmt.Sprintf(`SELECT zone FROM %s WHERE widget_id = $1 AND layout_id = $2 AND `+visibleCond+`;`,
		qualified(schema, tableZoneWidgets))
	errdb = tx.QueryRowContext(ctx, query, widgetID, layoutID).Scan(&sourceZone)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			err = dberror.ErrNotFound.Msg("zone widget not found")
			return err
		}
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	if sourceZone == targetZone {
		orders, oerr := zoneOrders(ctx, tx, schema, layoutID, sourceZone)
		if oerr != nil {
			err = oerr
			return err
		}
		from := indexOf(orders, widgetID)
		to := clampIndex(targetIndex, len(orders)-1)
		orders = splice(orders, from, to)
		if err = writeWidgetOrders(ctx, tx, schema, denseChanges(orders)); err != nil {
			return err
		}
	} else {
		dest, oerr := zoneOrders(ctx, tx, schema, layoutID, targetZone)
		if oerr != nil {
			err = oerr
			return err
		}
		to := clampIndex(targetIndex, len(dest))
		// Move into the destination zone at the requested slot; the dense
		// rewrite below settles exact orders.
		query = fmt.Sprintf(`UPDATE %s SET zone = $2, sort_order = $3, updated_at = now() WHERE widget_id = $1;`,
			qualified(schema, tableZoneWidgets))
		if _, errdb = tx.ExecContext(ctx, query, widgetID, targetZone, to*2+1); errdb != nil {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
		// Shift pre-existing destination rows to even slots so the moved
		// widget's odd slot lands exactly at index to.
		for i, r := range dest {
			slot := i * 2
			if i >= to {
				slot = (i + 1) * 2
			}
			update := fmt.Sprintf(`UPDATE %s SET sort_order = $2, updated_at = now() WHERE widget_id = $1;`,
				qualified(schema, tableZoneWidgets))
			if _, errdb = tx.ExecContext(ctx, update, r.ID, slot); errdb != nil {
				err = dberror.ErrDatabase.Err(errdb)
				return err
			}
		}
		if err = normalizeZone(ctx, tx, schema, layoutID, sourceZone); err != nil {
			return err
		}
		if err = normalizeZone(ctx, tx, schema, layoutID, targetZone); err != nil {
			return err
		}
	}

	if err = resyncLayoutConfigTx(ctx, tx, schema, layoutID); err != nil {
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// UpdateZoneWidget applies a version-checked patch to the widget and resyncs
// the layout's denormalized config in the same transaction.
func (rm *registryManager) UpdateZoneWidget(ctx context.Context, schema string, layoutID, widgetID uuid.UUID, expectedVersion int, patch *Patch) (int, apperrors.Error) {
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

	if _, _, err = lockLayoutRow(ctx, tx, schema, layoutID); err != nil {
		return 0, err
	}
	newVersion, err := rm.updateWithVersionCheckTx(ctx, tx, schema, tableZoneWidgets, "widget_id", widgetID, mhcommon.EntityTypeZoneWidget, expectedVersion, patch)
	if err != nil {
		return 0, err
	}
	if err = resyncLayoutConfigTx(ctx, tx, schema, layoutID); err != nil {
		return 0, err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return 0, err
	}
	return newVersion, nil
}

// RemoveZoneWidget soft-deletes the widget, renormalizes its zone, and
// resyncs the layout config.
func (rm *registryManager) RemoveZoneWidget(ctx context.Context, schema string, layoutID, widgetID uuid.UUID) apperrors.Error {
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

	if _, _, err = lockLayoutRow(ctx, tx, schema, layoutID); err != nil {
		return err
	}

	var zone string
	query := fmt.Sprintf(`SELECT zone FROM %s WHERE widget_id = $1 AND layout_id = $2 AND `+visibleCond+` FOR UPDATE;`,
		qualified(schema, tableZoneWidgets))
	errdb = tx.QueryRowContext(ctx, query, widgetID, layoutID).Scan(&zone)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			err = dberror.ErrNotFound.Msg("zone widget not found")
			return err
		}
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}

	deleter := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query = fmt.Sprintf(`
		UPDATE %s SET mh_deleted = true, mh_deleted_at = now(), mh_deleted_by = $2, updated_at = now()
		WHERE widget_id = $1;`, qualified(schema, tableZoneWidgets))
	if _, errdb = tx.ExecContext(ctx, query, widgetID, deleter); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if err = normalizeZone(ctx, tx, schema, layoutID, zone); err != nil {
		return err
	}
	if err = resyncLayoutConfigTx(ctx, tx, schema, layoutID); err != nil {
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// SeedLayoutWidgets inserts the template's default widgets for a layout that
// has none yet, then resyncs the config. Used right after createLayout.
func (rm *registryManager) SeedLayoutWidgets(ctx context.Context, schema string, layoutID uuid.UUID, widgets []*models.ZoneWidget) apperrors.Error {
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

	if _, _, err = lockLayoutRow(ctx, tx, schema, layoutID); err != nil {
		return err
	}
	var existing int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE layout_id = $1;`, qualified(schema, tableZoneWidgets))
	if errdb = tx.QueryRowContext(ctx, query, layoutID).Scan(&existing); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if existing > 0 {
		tx.Rollback()
		return nil
	}

	creator := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	insert := fmt.Sprintf(`
		INSERT INTO %s (widget_id, layout_id, widget_key, zone, sort_order, config, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7);`, qualified(schema, tableZoneWidgets))
	for _, w := range widgets {
		if w.WidgetID == uuid.Nil {
			w.WidgetID = uuid.New()
		}
		if _, errdb = tx.ExecContext(ctx, insert,
			w.WidgetID, layoutID, w.WidgetKey, w.Zone, w.SortOrder, w.Config, creator); errdb != nil {
			err = mapPgError(ctx, errdb, "failed to seed zone widget")
			return err
		}
	}
	if err = resyncLayoutConfigTx(ctx, tx, schema, layoutID); err != nil {
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}
