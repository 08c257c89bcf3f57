package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func TestGetWidgetDef(t *testing.T) {
	def, err := GetWidgetDef("navigation")
	require.Nil(t, err)
	assert.Equal(t, "navigation", def.Key)
	assert.False(t, def.MultiInstance)

	_, err = GetWidgetDef("carousel")
	assert.NotNil(t, err)
}

func TestWidgetAllowedZones(t *testing.T) {
	nav, _ := GetWidgetDef("navigation")
	assert.True(t, nav.AllowsZone(mhcommon.ZoneHeader))
	assert.True(t, nav.AllowsZone(mhcommon.ZoneSidebar))
	assert.False(t, nav.AllowsZone(mhcommon.ZoneFooter))

	footer, _ := GetWidgetDef("footer_links")
	assert.True(t, footer.AllowsZone(mhcommon.ZoneFooter))
	assert.False(t, footer.AllowsZone(mhcommon.ZoneMain))
}

func TestValidateWidgetConfig(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		config string
		ok     bool
	}{
		{"empty config", "navigation", "", true},
		{"valid navigation", "navigation", `{"collapsed":true,"depth":3}`, true},
		{"depth out of range", "navigation", `{"depth":9}`, false},
		{"unknown property", "navigation", `{"style":"compact"}`, false},
		{"valid search", "search", `{"placeholder":{"en":"Search..."},"kinds":["catalog"]}`, true},
		{"kinds not strings", "search", `{"kinds":[1,2]}`, false},
		{"valid browser", "catalog_browser", `{"catalogId":"c1","pageSize":50}`, true},
		{"page size zero", "catalog_browser", `{"pageSize":0}`, false},
		{"valid footer", "footer_links", `{"links":[{"url":"/about","label":{"en":"About"}}]}`, true},
		{"footer link without url", "footer_links", `{"links":[{"label":{"en":"About"}}]}`, false},
		{"not json", "navigation", `{"collapsed":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := GetWidgetDef(tt.key)
			require.Nil(t, err)
			verr := validateWidgetConfig(def, json.RawMessage(tt.config))
			if tt.ok {
				assert.Nil(t, verr)
			} else {
				assert.NotNil(t, verr)
			}
		})
	}
}

func TestDefaultSeedWidgets(t *testing.T) {
	seeds := defaultSeedWidgets()
	require.NotEmpty(t, seeds)
	for _, s := range seeds {
		def, err := GetWidgetDef(s.Key)
		require.Nil(t, err, s.Key)
		assert.True(t, def.AllowsZone(s.Zone), "%s in %s", s.Key, s.Zone)
	}
}
