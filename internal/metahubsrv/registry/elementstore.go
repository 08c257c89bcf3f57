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

// CreateElement inserts a predefined data record after validating its payload
// against the catalog's attribute definitions.
func CreateElement(ctx context.Context, req *CreateElementRequest) (*ElementDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := db.DB(ctx)

	obj, err := d.GetObject(ctx, schema, req.ObjectID)
	if err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	if !obj.Kind.IsDataBearing() {
		return nil, ErrNotDataBearingObject.Msg(string(obj.Kind))
	}
	attrs, err := d.ListAttributes(ctx, schema, req.ObjectID)
	if err != nil {
		return nil, err
	}
	if err := validateElementData(attrs, req.Data); err != nil {
		return nil, err
	}

	element := &models.Element{
		ObjectID: req.ObjectID,
		Data:     jsonbFrom(req.Data),
	}
	if req.OwnerID != nil {
		element.OwnerID.UUID = *req.OwnerID
		element.OwnerID.Valid = true
	}
	if err := d.CreateElement(ctx, schema, element); err != nil {
		return nil, mapDbError(err, ErrElementNotFound)
	}
	return elementDTO(element), nil
}

// GetElement retrieves one element.
func GetElement(ctx context.Context, elementID uuid.UUID) (*ElementDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	element, err := db.DB(ctx).GetElement(ctx, schema, elementID)
	if err != nil {
		return nil, mapDbError(err, ErrElementNotFound)
	}
	return elementDTO(element), nil
}

// ListElements returns an object's elements in sort order.
func ListElements(ctx context.Context, objectID uuid.UUID) ([]*ElementDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	elements, err := db.DB(ctx).ListElements(ctx, schema, objectID)
	if err != nil {
		return nil, err
	}
	dtos := make([]*ElementDTO, 0, len(elements))
	for _, e := range elements {
		dtos = append(dtos, elementDTO(e))
	}
	return dtos, nil
}

// UpdateElement merges the patch onto the stored payload and validates the
// merged result, then writes it under the optimistic lock.
func UpdateElement(ctx context.Context, elementID uuid.UUID, req *UpdateElementRequest) (*ElementDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := db.DB(ctx)

	element, err := d.GetElement(ctx, schema, elementID)
	if err != nil {
		return nil, mapDbError(err, ErrElementNotFound)
	}
	attrs, err := d.ListAttributes(ctx, schema, element.ObjectID)
	if err != nil {
		return nil, err
	}
	merged, err := mergeElementData(element.Data.Bytes, req.Data)
	if err != nil {
		return nil, err
	}
	if err := validateElementData(attrs, merged); err != nil {
		return nil, err
	}

	patch := postgresql.NewPatch().Set("data", jsonbFrom(merged))
	if _, err := d.UpdateElement(ctx, schema, elementID, req.Version, patch); err != nil {
		return nil, mapDbError(err, ErrElementNotFound)
	}
	updated, err := d.GetElement(ctx, schema, elementID)
	if err != nil {
		return nil, mapDbError(err, ErrElementNotFound)
	}
	return elementDTO(updated), nil
}

// MoveElement shifts the element one step within its object's order.
func MoveElement(ctx context.Context, objectID, elementID uuid.UUID, direction mhcommon.MoveDirection) apperrors.Error {
	if !direction.IsValid() {
		return ErrInvalidRequest.Msg("invalid move direction")
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).MoveElement(ctx, schema, objectID, elementID, direction), ErrElementNotFound)
}

// DeleteElement moves the element to the trash.
func DeleteElement(ctx context.Context, elementID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).SoftDeleteElement(ctx, schema, elementID), ErrElementNotFound)
}

// RestoreElement recovers the element from the trash.
func RestoreElement(ctx context.Context, elementID uuid.UUID) (*ElementDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := db.DB(ctx)
	if err := d.RestoreElement(ctx, schema, elementID); err != nil {
		return nil, mapDbError(err, ErrElementNotFound)
	}
	element, err := d.GetElement(ctx, schema, elementID)
	if err != nil {
		return nil, mapDbError(err, ErrElementNotFound)
	}
	return elementDTO(element), nil
}

// PermanentDeleteElement hard-deletes the element.
func PermanentDeleteElement(ctx context.Context, elementID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).PermanentDeleteElement(ctx, schema, elementID), ErrElementNotFound)
}
