package models

import (
	"github.com/jackc/pgtype"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
)

/*
    Column    |          Type           | Collation | Nullable | Default
--------------+-------------------------+-----------+----------+---------
 layout_id    | uuid                    |           | not null |
 template_key | character varying(64)   |           | not null |
 name         | jsonb                   |           | not null | '{}'
 description  | jsonb                   |           | not null | '{}'
 config       | jsonb                   |           | not null | '{}'
 is_active    | boolean                 |           | not null | true
 is_default   | boolean                 |           | not null | false
 sort_order   | integer                 |           | not null | 0
 + platform/metahub state columns
Indexes:
    "layouts_pkey" PRIMARY KEY, btree (layout_id)
*/

// Layout is a named dashboard arrangement. Config is a denormalized read
// model derived from the layout's active zone widgets; it is rewritten by the
// unchecked version-increment path whenever widget membership changes.
type Layout struct {
	LayoutID    uuid.UUID    `db:"layout_id"`
	TemplateKey string       `db:"template_key"`
	Name        pgtype.JSONB `db:"name"`
	Description pgtype.JSONB `db:"description"`
	Config      pgtype.JSONB `db:"config"`
	IsActive    bool         `db:"is_active"`
	IsDefault   bool         `db:"is_default"`
	SortOrder   int          `db:"sort_order"`
	State       RowState
}

/*
   Column   |          Type           | Collation | Nullable | Default
------------+-------------------------+-----------+----------+---------
 widget_id  | uuid                    |           | not null |
 layout_id  | uuid                    |           | not null |
 widget_key | character varying(64)   |           | not null |
 zone       | character varying(64)   |           | not null |
 sort_order | integer                 |           | not null | 0
 config     | jsonb                   |           | not null | '{}'
 + platform/metahub state columns
Indexes:
    "zone_widgets_pkey" PRIMARY KEY, btree (widget_id)
    "zone_widgets_layout_zone_idx" btree (layout_id, zone)
*/

// ZoneWidget binds a widget key to a zone within one Layout.
type ZoneWidget struct {
	WidgetID  uuid.UUID    `db:"widget_id"`
	LayoutID  uuid.UUID    `db:"layout_id"`
	WidgetKey string       `db:"widget_key"`
	Zone      string       `db:"zone"`
	SortOrder int          `db:"sort_order"`
	Config    pgtype.JSONB `db:"config"`
	State     RowState
}
