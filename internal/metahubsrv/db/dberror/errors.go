// Package dberror defines the error taxonomy surfaced by the persistence
// layer. The transport boundary maps each entry 1:1 to a response code; the
// registries never retry on any of these.
package dberror

import (
	"fmt"
	"net/http"
	"time"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
)

var (
	ErrDatabase               apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrNotFound               apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrValidationFailed       apperrors.Error = ErrDatabase.New("validation failed").SetExpandError(true).SetStatusCode(http.StatusBadRequest)
	ErrUniqueViolation        apperrors.Error = ErrDatabase.New("unique constraint violated").SetStatusCode(http.StatusConflict)
	ErrOptimisticLockConflict apperrors.Error = ErrDatabase.New("version conflict").SetExpandError(true).SetStatusCode(http.StatusConflict)
	ErrIntegrityBlocked       apperrors.Error = ErrDatabase.New("deletion blocked by references").SetExpandError(true).SetStatusCode(http.StatusConflict)
	ErrInvariantViolation     apperrors.Error = ErrDatabase.New("invariant violation").SetStatusCode(http.StatusConflict)
	ErrInvalidInput           apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)
	ErrMissingTenantID        apperrors.Error = ErrInvalidInput.New("missing tenant ID").SetStatusCode(http.StatusBadRequest)
	ErrNoDefaultBranch        apperrors.Error = ErrDatabase.New("tenant has no default branch").SetStatusCode(http.StatusInternalServerError)
)

// VersionConflict carries the state of the row that won the race. It is
// attached to ErrOptimisticLockConflict so callers can refetch and retry.
type VersionConflict struct {
	EntityID        uuid.UUID
	EntityType      string
	ExpectedVersion int
	ActualVersion   int
	UpdatedAt       time.Time
	UpdatedBy       uuid.NullUUID
}

func (c *VersionConflict) Error() string {
	return fmt.Sprintf("%s %s: expected version %d, actual version %d",
		c.EntityType, c.EntityID, c.ExpectedVersion, c.ActualVersion)
}

// ConflictFromError extracts the VersionConflict wrapped in an
// ErrOptimisticLockConflict, if present.
func ConflictFromError(err error) *VersionConflict {
	appErr, ok := err.(apperrors.Error)
	if !ok {
		return nil
	}
	for _, wrapped := range appErr.Unwrap() {
		if c, ok := wrapped.(*VersionConflict); ok {
			return c
		}
		if c := ConflictFromError(wrapped); c != nil {
			return c
		}
	}
	return nil
}

// Blocker identifies one entity holding a live reference to the entity whose
// deletion was refused.
type Blocker struct {
	EntityType string
	EntityID   uuid.UUID
	Codename   string
	ObjectID   uuid.UUID
}

func (b Blocker) String() string {
	return fmt.Sprintf("%s %s (%s)", b.EntityType, b.EntityID, b.Codename)
}

// BlockerList is attached to ErrIntegrityBlocked and lists every blocking
// reference found.
type BlockerList []Blocker

func (l BlockerList) Error() string {
	if len(l) == 0 {
		return "no blockers"
	}
	msg := "blocked by"
	for _, b := range l {
		msg += " " + b.String()
	}
	return msg
}

// BlockersFromError extracts the BlockerList wrapped in an
// ErrIntegrityBlocked, if present.
func BlockersFromError(err error) BlockerList {
	if appErr, ok := err.(apperrors.Error); ok {
		for _, wrapped := range appErr.Unwrap() {
			if l, ok := wrapped.(BlockerList); ok {
				return l
			}
			if l := BlockersFromError(wrapped); l != nil {
				return l
			}
		}
	}
	return nil
}
