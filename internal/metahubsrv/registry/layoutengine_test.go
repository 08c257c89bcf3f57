package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func TestSchemaSeedsDefaultLayout(t *testing.T) {
	ctx := setupTenant(t)

	layout, err := GetDefaultLayout(ctx)
	require.Nil(t, err)
	assert.True(t, layout.IsActive)
	assert.True(t, layout.IsDefault)
	assert.Equal(t, mhcommon.DefaultLayoutTemplate, layout.TemplateKey)

	widgets, err := ListZoneWidgets(ctx, layout.LayoutID)
	require.Nil(t, err)
	assert.Len(t, widgets, len(defaultSeedWidgets()))

	// the denormalized config mirrors the seeded widgets per zone
	var cfg struct {
		Zones map[string][]struct {
			WidgetKey string `json:"widgetKey"`
			SortOrder int    `json:"sortOrder"`
		} `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(layout.Config, &cfg))
	require.Len(t, cfg.Zones[mhcommon.ZoneMain], 1)
	assert.Equal(t, "catalog_browser", cfg.Zones[mhcommon.ZoneMain][0].WidgetKey)
}

func TestLayoutDefaultInvariants(t *testing.T) {
	ctx := setupTenant(t)
	seeded, err := GetDefaultLayout(ctx)
	require.Nil(t, err)

	// default layouts must be active
	_, err = CreateLayout(ctx, &CreateLayoutRequest{
		TemplateKey: "compact",
		IsActive:    false,
		IsDefault:   true,
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// a new default demotes the seeded one
	second, err := CreateLayout(ctx, &CreateLayoutRequest{
		TemplateKey: "compact",
		IsActive:    true,
		IsDefault:   true,
	})
	require.Nil(t, err)
	assert.True(t, second.IsDefault)

	oldDefault, err := GetLayout(ctx, seeded.LayoutID)
	require.Nil(t, err)
	assert.False(t, oldDefault.IsDefault)

	// the default flag cannot be cleared in place, only reassigned
	off := false
	_, err = UpdateLayout(ctx, second.LayoutID, &UpdateLayoutRequest{
		Version:   second.Audit.Version,
		IsDefault: &off,
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// the default layout cannot be deleted
	err = DeleteLayout(ctx, second.LayoutID)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// a non-default layout can
	require.Nil(t, DeleteLayout(ctx, seeded.LayoutID))
}

func TestLayoutLastActiveInvariant(t *testing.T) {
	ctx := setupTenant(t)
	seeded, err := GetDefaultLayout(ctx)
	require.Nil(t, err)

	off := false
	_, err = UpdateLayout(ctx, seeded.LayoutID, &UpdateLayoutRequest{
		Version:  seeded.Audit.Version,
		IsActive: &off,
	})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// with a second active layout around, deactivation works on non-defaults
	second, err := CreateLayout(ctx, &CreateLayoutRequest{
		TemplateKey: "compact",
		IsActive:    true,
	})
	require.Nil(t, err)
	_, err = UpdateLayout(ctx, second.LayoutID, &UpdateLayoutRequest{
		Version:  second.Audit.Version,
		IsActive: &off,
	})
	require.Nil(t, err)
}

func assignWidget(t *testing.T, ctx context.Context, layoutID uuid.UUID, key, zone string) *ZoneWidgetDTO {
	t.Helper()
	w, err := AssignZoneWidget(ctx, &AssignZoneWidgetRequest{
		LayoutID:  layoutID,
		WidgetKey: key,
		Zone:      zone,
	})
	require.Nil(t, err)
	return w
}

func TestAssignZoneWidgetChecks(t *testing.T) {
	ctx := setupTenant(t)
	layout, err := CreateLayout(ctx, &CreateLayoutRequest{TemplateKey: "blank", IsActive: true})
	require.Nil(t, err)

	_, err = AssignZoneWidget(ctx, &AssignZoneWidgetRequest{
		LayoutID:  layout.LayoutID,
		WidgetKey: "carousel",
		Zone:      mhcommon.ZoneMain,
	})
	assert.ErrorIs(t, err, ErrInvalidWidgetKey)

	_, err = AssignZoneWidget(ctx, &AssignZoneWidgetRequest{
		LayoutID:  layout.LayoutID,
		WidgetKey: "navigation",
		Zone:      "gutter",
	})
	assert.ErrorIs(t, err, ErrInvalidZone)

	_, err = AssignZoneWidget(ctx, &AssignZoneWidgetRequest{
		LayoutID:  layout.LayoutID,
		WidgetKey: "footer_links",
		Zone:      mhcommon.ZoneMain,
	})
	assert.ErrorIs(t, err, ErrZoneNotAllowed)

	_, err = AssignZoneWidget(ctx, &AssignZoneWidgetRequest{
		LayoutID:  layout.LayoutID,
		WidgetKey: "navigation",
		Zone:      mhcommon.ZoneSidebar,
		Config:    json.RawMessage(`{"depth":99}`),
	})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestSingleInstanceWidgetRelocates(t *testing.T) {
	ctx := setupTenant(t)
	layout, err := CreateLayout(ctx, &CreateLayoutRequest{TemplateKey: "blank", IsActive: true})
	require.Nil(t, err)

	// CreateLayout seeds the default widget set; navigation starts in the
	// sidebar
	widgets, err := ListZoneWidgets(ctx, layout.LayoutID)
	require.Nil(t, err)
	require.NotEmpty(t, widgets)

	nav := assignWidget(t, ctx, layout.LayoutID, "navigation", mhcommon.ZoneHeader)
	assert.Equal(t, mhcommon.ZoneHeader, nav.Zone)

	after, err := ListZoneWidgets(ctx, layout.LayoutID)
	require.Nil(t, err)
	assert.Len(t, after, len(widgets))
	count := 0
	for _, w := range after {
		if w.WidgetKey == "navigation" {
			count++
			assert.Equal(t, mhcommon.ZoneHeader, w.Zone)
		}
	}
	assert.Equal(t, 1, count)
}

func TestMultiInstanceWidgetDuplicates(t *testing.T) {
	ctx := setupTenant(t)
	layout, err := CreateLayout(ctx, &CreateLayoutRequest{TemplateKey: "blank", IsActive: true})
	require.Nil(t, err)

	assignWidget(t, ctx, layout.LayoutID, "recent_items", mhcommon.ZoneMain)
	assignWidget(t, ctx, layout.LayoutID, "recent_items", mhcommon.ZoneMain)

	widgets, err := ListZoneWidgets(ctx, layout.LayoutID)
	require.Nil(t, err)
	count := 0
	for _, w := range widgets {
		if w.WidgetKey == "recent_items" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestMoveZoneWidget(t *testing.T) {
	ctx := setupTenant(t)
	layout, err := CreateLayout(ctx, &CreateLayoutRequest{TemplateKey: "blank", IsActive: true})
	require.Nil(t, err)

	a := assignWidget(t, ctx, layout.LayoutID, "recent_items", mhcommon.ZoneMain)
	b := assignWidget(t, ctx, layout.LayoutID, "recent_items", mhcommon.ZoneMain)

	// move b ahead of a within the zone; an oversized index clamps
	require.Nil(t, MoveZoneWidget(ctx, &MoveZoneWidgetRequest{
		LayoutID:    layout.LayoutID,
		WidgetID:    b.WidgetID,
		TargetZone:  mhcommon.ZoneMain,
		TargetIndex: 0,
	}))

	widgets, err := ListZoneWidgets(ctx, layout.LayoutID)
	require.Nil(t, err)
	mainOrder := widgetsInZone(widgets, mhcommon.ZoneMain)
	require.GreaterOrEqual(t, len(mainOrder), 2)
	assert.Equal(t, b.WidgetID, mainOrder[0].WidgetID)
	assert.Equal(t, 1, mainOrder[0].SortOrder)

	// cross-zone move re-normalizes both zones
	require.Nil(t, MoveZoneWidget(ctx, &MoveZoneWidgetRequest{
		LayoutID:    layout.LayoutID,
		WidgetID:    a.WidgetID,
		TargetZone:  mhcommon.ZoneSidebar,
		TargetIndex: 99,
	}))
	widgets, err = ListZoneWidgets(ctx, layout.LayoutID)
	require.Nil(t, err)
	sidebar := widgetsInZone(widgets, mhcommon.ZoneSidebar)
	require.NotEmpty(t, sidebar)
	assert.Equal(t, a.WidgetID, sidebar[len(sidebar)-1].WidgetID)
	for i, w := range sidebar {
		assert.Equal(t, i+1, w.SortOrder)
	}

	// the destination zone must be allowed for the widget's key
	err = MoveZoneWidget(ctx, &MoveZoneWidgetRequest{
		LayoutID:   layout.LayoutID,
		WidgetID:   b.WidgetID,
		TargetZone: mhcommon.ZoneFooter,
	})
	assert.ErrorIs(t, err, ErrZoneNotAllowed)
}

func widgetsInZone(widgets []*ZoneWidgetDTO, zone string) []*ZoneWidgetDTO {
	var out []*ZoneWidgetDTO
	for _, w := range widgets {
		if w.Zone == zone {
			out = append(out, w)
		}
	}
	return out
}

func TestRemoveZoneWidgetResyncsConfig(t *testing.T) {
	ctx := setupTenant(t)
	layout, err := CreateLayout(ctx, &CreateLayoutRequest{TemplateKey: "blank", IsActive: true})
	require.Nil(t, err)

	w := assignWidget(t, ctx, layout.LayoutID, "recent_items", mhcommon.ZoneMain)
	require.Nil(t, RemoveZoneWidget(ctx, layout.LayoutID, w.WidgetID))

	got, err := GetLayout(ctx, layout.LayoutID)
	require.Nil(t, err)
	var cfg struct {
		Zones map[string][]struct {
			WidgetKey string `json:"widgetKey"`
		} `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(got.Config, &cfg))
	for _, entry := range cfg.Zones[mhcommon.ZoneMain] {
		assert.NotEqual(t, "recent_items", entry.WidgetKey)
	}
}

func TestMoveZoneWidgetValidationErrors(t *testing.T) {
	ctx := setupTenant(t)
	layout, err := CreateLayout(ctx, &CreateLayoutRequest{TemplateKey: "blank", IsActive: true})
	require.Nil(t, err)

	err = MoveZoneWidget(ctx, &MoveZoneWidgetRequest{
		LayoutID:   layout.LayoutID,
		WidgetID:   uuid.New(),
		TargetZone: mhcommon.ZoneMain,
	})
	assert.ErrorIs(t, err, ErrWidgetNotFound)

	err = MoveZoneWidget(ctx, &MoveZoneWidgetRequest{
		LayoutID:   layout.LayoutID,
		WidgetID:   uuid.New(),
		TargetZone: "gutter",
	})
	assert.ErrorIs(t, err, ErrInvalidZone)
}
