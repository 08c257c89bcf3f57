package registry

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

// WidgetDef declares a widget key's static behavior: which zones accept it,
// whether a layout may hold more than one instance, and the schema its
// per-instance config must satisfy.
type WidgetDef struct {
	Key           string
	AllowedZones  []string
	MultiInstance bool
	ConfigSchema  *jsonschema.Schema
}

func (d *WidgetDef) AllowsZone(zone string) bool {
	for _, z := range d.AllowedZones {
		if z == zone {
			return true
		}
	}
	return false
}

func mustCompileSchema(key, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(key+".json", bytes.NewReader([]byte(schema))); err != nil {
		panic(err)
	}
	return c.MustCompile(key + ".json")
}

// widgetDefs is the static widget catalog. Keys not listed here are rejected
// at assignment time.
var widgetDefs = map[string]*WidgetDef{
	"navigation": {
		Key:           "navigation",
		AllowedZones:  []string{mhcommon.ZoneHeader, mhcommon.ZoneSidebar},
		MultiInstance: false,
		ConfigSchema: mustCompileSchema("navigation", `{
			"type": "object",
			"properties": {
				"collapsed": {"type": "boolean"},
				"depth": {"type": "integer", "minimum": 1, "maximum": 5}
			},
			"additionalProperties": false
		}`),
	},
	"search": {
		Key:           "search",
		AllowedZones:  []string{mhcommon.ZoneHeader, mhcommon.ZoneMain},
		MultiInstance: false,
		ConfigSchema: mustCompileSchema("search", `{
			"type": "object",
			"properties": {
				"placeholder": {"type": "object", "additionalProperties": {"type": "string"}},
				"kinds": {"type": "array", "items": {"type": "string"}}
			},
			"additionalProperties": false
		}`),
	},
	"catalog_browser": {
		Key:           "catalog_browser",
		AllowedZones:  []string{mhcommon.ZoneMain},
		MultiInstance: true,
		ConfigSchema: mustCompileSchema("catalog_browser", `{
			"type": "object",
			"properties": {
				"catalogId": {"type": "string"},
				"pageSize": {"type": "integer", "minimum": 1, "maximum": 200}
			},
			"additionalProperties": false
		}`),
	},
	"recent_items": {
		Key:           "recent_items",
		AllowedZones:  []string{mhcommon.ZoneMain, mhcommon.ZoneSidebar},
		MultiInstance: true,
		ConfigSchema: mustCompileSchema("recent_items", `{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "minimum": 1, "maximum": 50}
			},
			"additionalProperties": false
		}`),
	},
	"footer_links": {
		Key:           "footer_links",
		AllowedZones:  []string{mhcommon.ZoneFooter},
		MultiInstance: false,
		ConfigSchema: mustCompileSchema("footer_links", `{
			"type": "object",
			"properties": {
				"links": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"label": {"type": "object", "additionalProperties": {"type": "string"}},
							"url": {"type": "string"}
						},
						"required": ["url"],
						"additionalProperties": false
					}
				}
			},
			"additionalProperties": false
		}`),
	},
}

// GetWidgetDef looks up a widget key in the static catalog.
func GetWidgetDef(key string) (*WidgetDef, apperrors.Error) {
	def, ok := widgetDefs[key]
	if !ok {
		return nil, ErrInvalidWidgetKey.Msg("unknown widget key: " + key)
	}
	return def, nil
}

// validateWidgetConfig checks an instance config against the key's schema.
// An empty config is always valid.
func validateWidgetConfig(def *WidgetDef, config json.RawMessage) apperrors.Error {
	if len(config) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(config, &doc); err != nil {
		return ErrValidationFailed.Msg("widget config is not valid JSON")
	}
	if err := def.ConfigSchema.Validate(doc); err != nil {
		return ErrValidationFailed.Err(err).Suffix(def.Key)
	}
	return nil
}

// defaultSeedWidgets is the widget set placed into a freshly created default
// layout.
type seedWidget struct {
	Key  string
	Zone string
}

func defaultSeedWidgets() []seedWidget {
	return []seedWidget{
		{Key: "navigation", Zone: mhcommon.ZoneSidebar},
		{Key: "search", Zone: mhcommon.ZoneHeader},
		{Key: "catalog_browser", Zone: mhcommon.ZoneMain},
		{Key: "footer_links", Zone: mhcommon.ZoneFooter},
	}
}
