package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

const layoutColumns = `layout_id, template_key, name, description, config, is_active, is_default, sort_order, ` + stateColumns

func scanLayout(scan func(dest ...any) error) (*models.Layout, error) {
	l := &models.Layout{}
	dest := []any{
		&l.LayoutID, &l.TemplateKey, &l.Name, &l.Description, &l.Config,
		&l.IsActive, &l.IsDefault, &l.SortOrder,
	}
	dest = append(dest, stateScanDest(&l.State)...)
	if err := scan(dest...); err != nil {
		return nil, err
	}
	return l, nil
}

// lockLayoutRow takes a row lock on the layout, serializing every multi-row
// mutation against that layout. Returns the locked row's flags.
func lockLayoutRow(ctx context.Context, tx *sql.Tx, schema string, layoutID uuid.UUID) (isActive, isDefault bool, err apperrors.Error) {
	query := fmt.Sprintf(`SELECT is_active, is_default FROM %s WHERE layout_id = $1 AND `+visibleCond+` FOR UPDATE;`,
		qualified(schema, tableLayouts))
	errdb := tx.QueryRowContext(ctx, query, layoutID).Scan(&isActive, &isDefault)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			return false, false, dberror.ErrNotFound.Msg("layout not found")
		}
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to lock layout row")
		return false, false, dberror.ErrDatabase.Err(errdb)
	}
	return isActive, isDefault, nil
}

// countOtherLayouts counts visible layouts other than layoutID matching the
// extra condition. Used for the last-active and last-default re-checks under
// the row lock.
func countOtherLayouts(ctx context.Context, tx *sql.Tx, schema string, layoutID uuid.UUID, cond string) (int, apperrors.Error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE layout_id != $1 AND %s AND `+visibleCond+`;`,
		qualified(schema, tableLayouts), cond)
	var n int
	if errdb := tx.QueryRowContext(ctx, query, layoutID).Scan(&n); errdb != nil {
		return 0, dberror.ErrDatabase.Err(errdb)
	}
	return n, nil
}

func demoteDefaultLayout(ctx context.Context, tx *sql.Tx, schema string, keep uuid.UUID) apperrors.Error {
	query := fmt.Sprintf(`UPDATE %s SET is_default = false, updated_at = now()
		WHERE layout_id != $1 AND is_default AND `+visibleCond+`;`, qualified(schema, tableLayouts))
	if _, errdb := tx.ExecContext(ctx, query, keep); errdb != nil {
		return dberror.ErrDatabase.Err(errdb)
	}
	return nil
}

// deriveLayoutConfig rebuilds the layout's denormalized config JSON from its
// visible zone widgets. The shape is {"zones": {"<zone>": [{"widgetKey",
// "sortOrder", "config"}, ...]}} with every zone of the template present.
func deriveLayoutConfig(ctx context.Context, tx *sql.Tx, schema string, layoutID uuid.UUID) ([]byte, apperrors.Error) {
	query := fmt.Sprintf(`SELECT widget_key, zone, sort_order, config FROM %s
		WHERE layout_id = $1 AND `+visibleCond+` ORDER BY zone, sort_order, widget_id;`,
		qualified(schema, tableZoneWidgets))
	rows, errdb := tx.QueryContext(ctx, query, layoutID)
	if errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	config := []byte(`{}`)
	for _, zone := range mhcommon.ValidZones() {
		config, errdb = sjson.SetRawBytes(config, "zones."+zone, []byte(`[]`))
		if errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
	}
	for rows.Next() {
		var widgetKey, zone string
		var sortOrder int
		var widgetConfig []byte
		if errdb := rows.Scan(&widgetKey, &zone, &sortOrder, &widgetConfig); errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		entry := []byte(`{}`)
		entry, _ = sjson.SetBytes(entry, "widgetKey", widgetKey)
		entry, _ = sjson.SetBytes(entry, "sortOrder", sortOrder)
		if len(widgetConfig) > 0 {
			entry, _ = sjson.SetRawBytes(entry, "config", widgetConfig)
		}
		config, errdb = sjson.SetRawBytes(config, "zones."+zone+".-1", entry)
		if errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return config, nil
}

// resyncLayoutConfigTx rewrites the layout's config from its current widget
// set through the unchecked version-increment path, so it never collides with
// a caller's own optimistic-lock write.
func resyncLayoutConfigTx(ctx context.Context, tx *sql.Tx, schema string, layoutID uuid.UUID) apperrors.Error {
	config, err := deriveLayoutConfig(ctx, tx, schema, layoutID)
	if err != nil {
		return err
	}
	patch := NewPatch().Set("config", config)
	return incrementVersionOn(ctx, tx, schema, tableLayouts, "layout_id", layoutID, patch)
}

// CreateLayout inserts a layout. A layout marked default demotes the previous
// default inside the same transaction; default plus inactive is rejected
// outright.
func (rm *registryManager) CreateLayout(ctx context.Context, schema string, layout *models.Layout) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	if layout.IsDefault && !layout.IsActive {
		return dberror.ErrInvariantViolation.Msg("the default layout must be active")
	}
	_, userID, err := tenantAndUserFromContext(ctx)
	if err != nil {
		return err
	}
	if layout.LayoutID == uuid.Nil {
		layout.LayoutID = uuid.New()
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

	if layout.IsDefault {
		if err = demoteDefaultLayout(ctx, tx, schema, layout.LayoutID); err != nil {
			return err
		}
	}
	if layout.SortOrder == 0 {
		query := fmt.Sprintf(`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM %s WHERE `+visibleCond+`;`,
			qualified(schema, tableLayouts))
		if errdb = tx.QueryRowContext(ctx, query).Scan(&layout.SortOrder); errdb != nil {
			err = dberror.ErrDatabase.Err(errdb)
			return err
		}
	}

	creator := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query := fmt.Sprintf(`
		INSERT INTO %s (layout_id, template_key, name, description, config, is_active, is_default, sort_order, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+layoutColumns+`;`, qualified(schema, tableLayouts))
	row := tx.QueryRowContext(ctx, query,
		layout.LayoutID, layout.TemplateKey, layout.Name, layout.Description, layout.Config,
		layout.IsActive, layout.IsDefault, layout.SortOrder, creator)
	created, errdb := scanLayout(row.Scan)
	if errdb != nil {
		err = mapPgError(ctx, errdb, "failed to insert layout")
		return err
	}
	*layout = *created

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}

// GetLayout retrieves a visible layout by id.
func (rm *registryManager) GetLayout(ctx context.Context, schema string, layoutID uuid.UUID) (*models.Layout, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+layoutColumns+` FROM %s WHERE layout_id = $1 AND `+visibleCond+`;`,
		qualified(schema, tableLayouts))
	l, errdb := scanLayout(rm.conn().QueryRowContext(ctx, query, layoutID).Scan)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("layout not found")
		}
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to retrieve layout")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return l, nil
}

// GetDefaultLayout retrieves the layout carrying the default flag.
func (rm *registryManager) GetDefaultLayout(ctx context.Context, schema string) (*models.Layout, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+layoutColumns+` FROM %s WHERE is_default AND `+visibleCond+`;`,
		qualified(schema, tableLayouts))
	l, errdb := scanLayout(rm.conn().QueryRowContext(ctx, query).Scan)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("no default layout")
		}
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to retrieve default layout")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return l, nil
}

// ListLayouts returns all visible layouts in sort order.
func (rm *registryManager) ListLayouts(ctx context.Context, schema string) ([]*models.Layout, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+layoutColumns+` FROM %s WHERE `+visibleCond+` ORDER BY sort_order, layout_id;`,
		qualified(schema, tableLayouts))
	rows, errdb := rm.conn().QueryContext(ctx, query)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to list layouts")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	var layouts []*models.Layout
	for rows.Next() {
		l, errdb := scanLayout(rows.Scan)
		if errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		layouts = append(layouts, l)
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return layouts, nil
}

// UpdateLayout applies a version-checked patch, re-checking the default and
// active invariants under the layout's row lock so a concurrent writer cannot
// slip between the check and the write.
func (rm *registryManager) UpdateLayout(ctx context.Context, schema string, layoutID uuid.UUID, expectedVersion int, patch *Patch) (int, apperrors.Error) {
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

	isActive, isDefault, err := lockLayoutRow(ctx, tx, schema, layoutID)
	if err != nil {
		return 0, err
	}

	wantsActive := isActive
	if v, ok := patch.Value("is_active"); ok {
		wantsActive, _ = v.(bool)
	}
	wantsDefault := isDefault
	if v, ok := patch.Value("is_default"); ok {
		wantsDefault, _ = v.(bool)
	}
	if wantsDefault && !wantsActive {
		err = dberror.ErrInvariantViolation.Msg("the default layout must be active")
		return 0, err
	}
	if isDefault && !wantsDefault {
		err = dberror.ErrInvariantViolation.Msg("promote another layout to default instead of clearing the flag")
		return 0, err
	}
	if isActive && !wantsActive {
		others, cerr := countOtherLayouts(ctx, tx, schema, layoutID, "is_active")
		if cerr != nil {
			err = cerr
			return 0, err
		}
		if others == 0 {
			err = dberror.ErrInvariantViolation.Msg("cannot deactivate the last active layout")
			return 0, err
		}
	}
	if wantsDefault && !isDefault {
		if err = demoteDefaultLayout(ctx, tx, schema, layoutID); err != nil {
			return 0, err
		}
	}

	newVersion, err := rm.updateWithVersionCheckTx(ctx, tx, schema, tableLayouts, "layout_id", layoutID, mhcommon.EntityTypeLayout, expectedVersion, patch)
	if err != nil {
		return 0, err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return 0, err
	}
	return newVersion, nil
}

// DeleteLayout soft-deletes the layout and cascades to its zone widgets. The
// default layout and the last active layout cannot be deleted; both checks
// run under the row lock.
func (rm *registryManager) DeleteLayout(ctx context.Context, schema string, layoutID uuid.UUID) apperrors.Error {
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

	isActive, isDefault, err := lockLayoutRow(ctx, tx, schema, layoutID)
	if err != nil {
		return err
	}
	if isDefault {
		err = dberror.ErrInvariantViolation.Msg("the default layout cannot be deleted")
		return err
	}
	if isActive {
		others, cerr := countOtherLayouts(ctx, tx, schema, layoutID, "is_active")
		if cerr != nil {
			err = cerr
			return err
		}
		if others == 0 {
			err = dberror.ErrInvariantViolation.Msg("cannot delete the last active layout")
			return err
		}
	}

	deleter := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query := fmt.Sprintf(`
		UPDATE %s SET mh_deleted = true, mh_deleted_at = now(), mh_deleted_by = $2, updated_at = now()
		WHERE layout_id = $1 AND `+visibleCond+`;`, qualified(schema, tableZoneWidgets))
	if _, errdb = tx.ExecContext(ctx, query, layoutID, deleter); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	query = fmt.Sprintf(`
		UPDATE %s SET mh_deleted = true, mh_deleted_at = now(), mh_deleted_by = $2, updated_at = now()
		WHERE layout_id = $1;`, qualified(schema, tableLayouts))
	if _, errdb = tx.ExecContext(ctx, query, layoutID, deleter); errdb != nil {
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

// SeedDefaultLayout inserts the initial default layout and its widgets when
// the schema's layout table is empty. Idempotent: a non-empty table makes the
// call a no-op.
func (rm *registryManager) SeedDefaultLayout(ctx context.Context, schema string, layout *models.Layout, widgets []*models.ZoneWidget) apperrors.Error {
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

	var existing int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s;`, qualified(schema, tableLayouts))
	if errdb = tx.QueryRowContext(ctx, query).Scan(&existing); errdb != nil {
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	if existing > 0 {
		tx.Rollback()
		return nil
	}

	if layout.LayoutID == uuid.Nil {
		layout.LayoutID = uuid.New()
	}
	creator := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query = fmt.Sprintf(`
		INSERT INTO %s (layout_id, template_key, name, description, config, is_active, is_default, sort_order, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, true, true, 1, $6, $6);`, qualified(schema, tableLayouts))
	if _, errdb = tx.ExecContext(ctx, query,
		layout.LayoutID, layout.TemplateKey, layout.Name, layout.Description, layout.Config, creator); errdb != nil {
		err = mapPgError(ctx, errdb, "failed to seed default layout")
		return err
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (widget_id, layout_id, widget_key, zone, sort_order, config, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7);`, qualified(schema, tableZoneWidgets))
	for _, w := range widgets {
		if w.WidgetID == uuid.Nil {
			w.WidgetID = uuid.New()
		}
		if _, errdb = tx.ExecContext(ctx, insert,
			w.WidgetID, layout.LayoutID, w.WidgetKey, w.Zone, w.SortOrder, w.Config, creator); errdb != nil {
			err = mapPgError(ctx, errdb, "failed to seed zone widget")
			return err
		}
	}
	if err = resyncLayoutConfigTx(ctx, tx, schema, layout.LayoutID); err != nil {
		return err
	}

	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		err = dberror.ErrDatabase.Err(errdb)
		return err
	}
	return nil
}
