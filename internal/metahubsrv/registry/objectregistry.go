package registry

import (
	"context"
	"errors"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/postgresql"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

// mapDbError translates persistence errors into the registry taxonomy,
// preserving the wrapped detail payloads.
func mapDbError(err apperrors.Error, notFound apperrors.Error) apperrors.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dberror.ErrNotFound):
		return notFound.Err(err)
	case errors.Is(err, dberror.ErrUniqueViolation):
		return ErrAlreadyExists.Err(err)
	case errors.Is(err, dberror.ErrOptimisticLockConflict):
		return ErrConflict.Err(err)
	case errors.Is(err, dberror.ErrInvariantViolation):
		return ErrInvariantViolation.Err(err)
	case errors.Is(err, dberror.ErrInvalidInput), errors.Is(err, dberror.ErrValidationFailed):
		return ErrInvalidRequest.Err(err)
	default:
		return err
	}
}

// CreateObject registers a new object. The codename is normalized before
// validation; a collision with a visible object of the same kind surfaces as
// a conflict, not a server error.
func CreateObject(ctx context.Context, req *CreateObjectRequest) (*ObjectDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.Kind.IsValid() {
		return nil, ErrInvalidKind.Msg(string(req.Kind))
	}
	codename := NormalizeCodename(req.Codename)
	if err := ValidateCodename(codename); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}

	obj := &models.Object{
		Kind:         req.Kind,
		Codename:     codename,
		Presentation: jsonbFrom(req.Presentation),
		Config:       jsonbFrom(req.Config),
	}
	if req.TableName != "" {
		obj.TableName.String = req.TableName
		obj.TableName.Valid = true
	}
	if err := db.DB(ctx).CreateObject(ctx, schema, obj); err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	return objectDTO(obj), nil
}

// GetObject retrieves a visible object by id.
func GetObject(ctx context.Context, objectID uuid.UUID) (*ObjectDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	obj, err := db.DB(ctx).GetObject(ctx, schema, objectID)
	if err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	return objectDTO(obj), nil
}

// GetObjectByCodename retrieves a visible object by its kind and codename.
func GetObjectByCodename(ctx context.Context, kind mhcommon.ObjectKind, codename string) (*ObjectDTO, apperrors.Error) {
	if !kind.IsValid() {
		return nil, ErrInvalidKind.Msg(string(kind))
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	obj, err := db.DB(ctx).GetObjectByCodename(ctx, schema, kind, NormalizeCodename(codename))
	if err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	return objectDTO(obj), nil
}

// ListObjects returns visible objects, optionally filtered by kind. An empty
// kind lists everything.
func ListObjects(ctx context.Context, kind mhcommon.ObjectKind) ([]*ObjectDTO, apperrors.Error) {
	if kind != "" && !kind.IsValid() {
		return nil, ErrInvalidKind.Msg(string(kind))
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	objs, err := db.DB(ctx).ListObjects(ctx, schema, kind)
	if err != nil {
		return nil, err
	}
	dtos := make([]*ObjectDTO, 0, len(objs))
	for _, o := range objs {
		dtos = append(dtos, objectDTO(o))
	}
	return dtos, nil
}

// ListObjectTrash returns objects recoverable from the trash.
func ListObjectTrash(ctx context.Context) ([]*ObjectDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	objs, err := db.DB(ctx).ListObjectTrash(ctx, schema)
	if err != nil {
		return nil, err
	}
	dtos := make([]*ObjectDTO, 0, len(objs))
	for _, o := range objs {
		dtos = append(dtos, objectDTO(o))
	}
	return dtos, nil
}

// UpdateObject applies the request as a version-checked patch. A conflict
// carries the winning row's version and editor for the caller to retry with.
func UpdateObject(ctx context.Context, objectID uuid.UUID, req *UpdateObjectRequest) (*ObjectDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}

	patch := postgresql.NewPatch()
	if req.Codename != nil {
		codename := NormalizeCodename(*req.Codename)
		if err := ValidateCodename(codename); err != nil {
			return nil, err
		}
		patch.Set("codename", codename)
	}
	if req.Presentation != nil {
		patch.Set("presentation", jsonbFrom(req.Presentation))
	}
	if req.Config != nil {
		patch.Set("config", jsonbFrom(req.Config))
	}

	d := db.DB(ctx)
	if _, err := d.UpdateObject(ctx, schema, objectID, req.Version, patch); err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	obj, err := d.GetObject(ctx, schema, objectID)
	if err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	return objectDTO(obj), nil
}

// DeleteObject moves the object to the trash.
func DeleteObject(ctx context.Context, objectID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).SoftDeleteObject(ctx, schema, objectID), ErrObjectNotFound)
}

// RestoreObject recovers the object from the trash.
func RestoreObject(ctx context.Context, objectID uuid.UUID) (*ObjectDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := db.DB(ctx)
	if err := d.RestoreObject(ctx, schema, objectID); err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	obj, err := d.GetObject(ctx, schema, objectID)
	if err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	return objectDTO(obj), nil
}

// PermanentDeleteObject hard-deletes an object and its dependent rows. The
// deletion is refused with the full blocker list while any REFERENCE
// attribute elsewhere still points at it.
func PermanentDeleteObject(ctx context.Context, objectID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	d := db.DB(ctx)
	obj, err := d.GetObject(ctx, schema, objectID)
	if err != nil && !errors.Is(err, dberror.ErrNotFound) {
		return err
	}
	if obj == nil {
		// Still in trash, or gone. Trash rows can be purged too.
		objs, lerr := d.ListObjectTrash(ctx, schema)
		if lerr != nil {
			return lerr
		}
		for _, o := range objs {
			if o.ObjectID == objectID {
				obj = o
				break
			}
		}
		if obj == nil {
			return ErrObjectNotFound
		}
	}

	blockers, err := d.FindAttributesReferencing(ctx, schema, objectID, obj.Kind)
	if err != nil {
		return err
	}
	if len(blockers) > 0 {
		return ErrDeletionBlocked.Err(blockers)
	}
	return mapDbError(d.PermanentDeleteObject(ctx, schema, objectID), ErrObjectNotFound)
}
