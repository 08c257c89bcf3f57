package registry

import (
	"context"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/postgresql"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func validZone(zone string) bool {
	for _, z := range mhcommon.ValidZones() {
		if z == zone {
			return true
		}
	}
	return false
}

// CreateLayout adds a dashboard layout. A layout created as default demotes
// the previous default; a fresh layout starts with the template's default
// widget set.
func CreateLayout(ctx context.Context, req *CreateLayoutRequest) (*LayoutDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.IsDefault && !req.IsActive {
		return nil, ErrInvariantViolation.Msg("the default layout must be active")
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := db.DB(ctx)

	layout := &models.Layout{
		TemplateKey: req.TemplateKey,
		Name:        jsonbFrom(req.Name),
		Description: jsonbFrom(req.Description),
		Config:      jsonbFrom(nil),
		IsActive:    req.IsActive,
		IsDefault:   req.IsDefault,
	}
	if err := d.CreateLayout(ctx, schema, layout); err != nil {
		return nil, mapDbError(err, ErrLayoutNotFound)
	}

	var widgets []*models.ZoneWidget
	for i, w := range defaultSeedWidgets() {
		widgets = append(widgets, &models.ZoneWidget{
			WidgetKey: w.Key,
			Zone:      w.Zone,
			SortOrder: i + 1,
			Config:    jsonbFrom(nil),
		})
	}
	if err := d.SeedLayoutWidgets(ctx, schema, layout.LayoutID, widgets); err != nil {
		return nil, err
	}
	created, err := d.GetLayout(ctx, schema, layout.LayoutID)
	if err != nil {
		return nil, mapDbError(err, ErrLayoutNotFound)
	}
	return layoutDTO(created), nil
}

// GetLayout retrieves one layout.
func GetLayout(ctx context.Context, layoutID uuid.UUID) (*LayoutDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	layout, err := db.DB(ctx).GetLayout(ctx, schema, layoutID)
	if err != nil {
		return nil, mapDbError(err, ErrLayoutNotFound)
	}
	return layoutDTO(layout), nil
}

// GetDefaultLayout retrieves the tenant's default layout.
func GetDefaultLayout(ctx context.Context) (*LayoutDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	layout, err := db.DB(ctx).GetDefaultLayout(ctx, schema)
	if err != nil {
		return nil, mapDbError(err, ErrLayoutNotFound)
	}
	return layoutDTO(layout), nil
}

// ListLayouts returns all layouts in sort order.
func ListLayouts(ctx context.Context) ([]*LayoutDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	layouts, err := db.DB(ctx).ListLayouts(ctx, schema)
	if err != nil {
		return nil, err
	}
	dtos := make([]*LayoutDTO, 0, len(layouts))
	for _, l := range layouts {
		dtos = append(dtos, layoutDTO(l))
	}
	return dtos, nil
}

// UpdateLayout applies the request as a version-checked patch. The default
// and last-active invariants are re-checked inside the write transaction.
func UpdateLayout(ctx context.Context, layoutID uuid.UUID, req *UpdateLayoutRequest) (*LayoutDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}

	patch := postgresql.NewPatch()
	if req.Name != nil {
		patch.Set("name", jsonbFrom(req.Name))
	}
	if req.Description != nil {
		patch.Set("description", jsonbFrom(req.Description))
	}
	if req.IsActive != nil {
		patch.Set("is_active", *req.IsActive)
	}
	if req.IsDefault != nil {
		patch.Set("is_default", *req.IsDefault)
	}

	d := db.DB(ctx)
	if _, err := d.UpdateLayout(ctx, schema, layoutID, req.Version, patch); err != nil {
		return nil, mapDbError(err, ErrLayoutNotFound)
	}
	layout, err := d.GetLayout(ctx, schema, layoutID)
	if err != nil {
		return nil, mapDbError(err, ErrLayoutNotFound)
	}
	return layoutDTO(layout), nil
}

// DeleteLayout soft-deletes the layout and its widgets.
func DeleteLayout(ctx context.Context, layoutID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).DeleteLayout(ctx, schema, layoutID), ErrLayoutNotFound)
}

// ListZoneWidgets returns the layout's widgets grouped by zone.
func ListZoneWidgets(ctx context.Context, layoutID uuid.UUID) ([]*ZoneWidgetDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	widgets, err := db.DB(ctx).ListZoneWidgets(ctx, schema, layoutID)
	if err != nil {
		return nil, err
	}
	dtos := make([]*ZoneWidgetDTO, 0, len(widgets))
	for _, w := range widgets {
		dtos = append(dtos, zoneWidgetDTO(w))
	}
	return dtos, nil
}

// AssignZoneWidget places a widget into a zone. The key must exist in the
// widget catalog, the zone must be among its allowed zones, and the instance
// config must satisfy the key's schema. Single-instance keys move rather
// than duplicate.
func AssignZoneWidget(ctx context.Context, req *AssignZoneWidgetRequest) (*ZoneWidgetDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	def, err := GetWidgetDef(req.WidgetKey)
	if err != nil {
		return nil, err
	}
	if !validZone(req.Zone) {
		return nil, ErrInvalidZone.Msg(req.Zone)
	}
	if !def.AllowsZone(req.Zone) {
		return nil, ErrZoneNotAllowed.Msg(req.WidgetKey + " cannot be placed in " + req.Zone)
	}
	if err := validateWidgetConfig(def, req.Config); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}

	widget := &models.ZoneWidget{
		LayoutID:  req.LayoutID,
		WidgetKey: req.WidgetKey,
		Zone:      req.Zone,
		Config:    jsonbFrom(req.Config),
	}
	if err := db.DB(ctx).AssignZoneWidget(ctx, schema, widget, def.MultiInstance); err != nil {
		return nil, mapDbError(err, ErrLayoutNotFound)
	}
	return zoneWidgetDTO(widget), nil
}

// MoveZoneWidget relocates a widget to a zone and position. The target index
// is clamped into the destination zone's bounds; the widget key must allow
// the destination zone.
func MoveZoneWidget(ctx context.Context, req *MoveZoneWidgetRequest) apperrors.Error {
	if err := validateRequest(req); err != nil {
		return err
	}
	if !validZone(req.TargetZone) {
		return ErrInvalidZone.Msg(req.TargetZone)
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	d := db.DB(ctx)

	widgets, err := d.ListZoneWidgets(ctx, schema, req.LayoutID)
	if err != nil {
		return err
	}
	var target *models.ZoneWidget
	for _, w := range widgets {
		if w.WidgetID == req.WidgetID {
			target = w
			break
		}
	}
	if target == nil {
		return ErrWidgetNotFound
	}
	def, err := GetWidgetDef(target.WidgetKey)
	if err != nil {
		return err
	}
	if !def.AllowsZone(req.TargetZone) {
		return ErrZoneNotAllowed.Msg(target.WidgetKey + " cannot be placed in " + req.TargetZone)
	}
	return mapDbError(d.MoveZoneWidget(ctx, schema, req.LayoutID, req.WidgetID, req.TargetZone, req.TargetIndex), ErrWidgetNotFound)
}

// UpdateZoneWidget replaces a widget instance's config after validating it
// against the widget key's schema.
func UpdateZoneWidget(ctx context.Context, layoutID, widgetID uuid.UUID, req *UpdateZoneWidgetRequest) (*ZoneWidgetDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := db.DB(ctx)

	widgets, err := d.ListZoneWidgets(ctx, schema, layoutID)
	if err != nil {
		return nil, err
	}
	var target *models.ZoneWidget
	for _, w := range widgets {
		if w.WidgetID == widgetID {
			target = w
			break
		}
	}
	if target == nil {
		return nil, ErrWidgetNotFound
	}
	def, err := GetWidgetDef(target.WidgetKey)
	if err != nil {
		return nil, err
	}
	if err := validateWidgetConfig(def, req.Config); err != nil {
		return nil, err
	}

	patch := postgresql.NewPatch().Set("config", jsonbFrom(req.Config))
	if _, err := d.UpdateZoneWidget(ctx, schema, layoutID, widgetID, req.Version, patch); err != nil {
		return nil, mapDbError(err, ErrWidgetNotFound)
	}
	updated, err := d.ListZoneWidgets(ctx, schema, layoutID)
	if err != nil {
		return nil, err
	}
	for _, w := range updated {
		if w.WidgetID == widgetID {
			return zoneWidgetDTO(w), nil
		}
	}
	return nil, ErrWidgetNotFound
}

// RemoveZoneWidget removes a widget from its layout.
func RemoveZoneWidget(ctx context.Context, layoutID, widgetID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).RemoveZoneWidget(ctx, schema, layoutID, widgetID), ErrWidgetNotFound)
}
