// Package models defines one row struct per system table. Every per-schema
// table carries two independent soft-delete tiers: the platform tier (audit
// trail, version counter, platform archive/delete/lock) and the metahub tier
// (publish/archive/delete as seen by the tenant). A row is visible only when
// neither tier has deleted it.
package models

import (
	"database/sql"
	"time"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
)

// DeletionState is the reversible-deletion triple shared by both tiers.
type DeletionState struct {
	Deleted   bool          `db:"deleted"`
	DeletedAt sql.NullTime  `db:"deleted_at"`
	DeletedBy uuid.NullUUID `db:"deleted_by"`
}

// PlatformState is the platform-level audit and lifecycle tier.
type PlatformState struct {
	CreatedAt time.Time     `db:"created_at"`
	CreatedBy uuid.NullUUID `db:"created_by"`
	UpdatedAt time.Time     `db:"updated_at"`
	UpdatedBy uuid.NullUUID `db:"updated_by"`
	Version   int           `db:"version"`
	Archived  bool          `db:"is_archived"`
	Locked    bool          `db:"is_locked"`
	DeletionState
}

// MetahubState is the tenant-facing lifecycle tier.
type MetahubState struct {
	Published bool `db:"mh_published"`
	Archived  bool `db:"mh_archived"`
	DeletionState
}

// RowState bundles both tiers as they appear on every system-table row.
type RowState struct {
	Platform PlatformState
	Metahub  MetahubState
}

// Visible reports whether the row is deleted at neither tier.
func (s RowState) Visible() bool {
	return !s.Platform.Deleted && !s.Metahub.Deleted
}

// InTrash reports whether the row is metahub-deleted but still platform-live,
// which is what trash views show.
func (s RowState) InTrash() bool {
	return s.Metahub.Deleted && !s.Platform.Deleted
}
