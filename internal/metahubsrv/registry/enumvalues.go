package registry

import (
	"context"
	"sync"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/postgresql"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

// Schemas whose enum default index is known to exist. The underlying
// migration is idempotent, so a cold cache only costs a repeat run.
var (
	enumConstraintReady = make(map[string]bool)
	enumConstraintMu    sync.Mutex
)

// ensureDefaultConstraint runs the lazy default-uniqueness migration once per
// schema per process: demote duplicate defaults, then create the partial
// unique index. Heals schemas created before the index existed.
func ensureDefaultConstraint(ctx context.Context, schema string) apperrors.Error {
	enumConstraintMu.Lock()
	ready := enumConstraintReady[schema]
	enumConstraintMu.Unlock()
	if ready {
		return nil
	}
	if err := db.DB(ctx).EnsureEnumDefaultIndex(ctx, schema); err != nil {
		return err
	}
	enumConstraintMu.Lock()
	enumConstraintReady[schema] = true
	enumConstraintMu.Unlock()
	return nil
}

// requireEnumeration loads the object and checks it is an enumeration.
func requireEnumeration(ctx context.Context, schema string, objectID uuid.UUID) (*models.Object, apperrors.Error) {
	obj, err := db.DB(ctx).GetObject(ctx, schema, objectID)
	if err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	if obj.Kind != mhcommon.KindEnumeration {
		return nil, ErrNotEnumerationObject.Msg(string(obj.Kind))
	}
	return obj, nil
}

// ListEnumValues returns the enumeration's values in order, self-healing any
// ordering gaps before returning.
func ListEnumValues(ctx context.Context, objectID uuid.UUID) ([]*EnumValueDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireEnumeration(ctx, schema, objectID); err != nil {
		return nil, err
	}
	if err := ensureDefaultConstraint(ctx, schema); err != nil {
		return nil, err
	}
	values, err := db.DB(ctx).ListEnumValues(ctx, schema, objectID)
	if err != nil {
		return nil, err
	}
	dtos := make([]*EnumValueDTO, 0, len(values))
	for _, v := range values {
		dtos = append(dtos, enumValueDTO(v))
	}
	return dtos, nil
}

// CreateEnumValue adds a value to an enumeration. A value created with the
// default flag demotes the current default in the same transaction.
func CreateEnumValue(ctx context.Context, req *CreateEnumValueRequest) (*EnumValueDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	codename := NormalizeCodename(req.Codename)
	if err := ValidateCodename(codename); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := requireEnumeration(ctx, schema, req.ObjectID); err != nil {
		return nil, err
	}
	if err := ensureDefaultConstraint(ctx, schema); err != nil {
		return nil, err
	}

	value := &models.EnumValue{
		ObjectID:    req.ObjectID,
		Codename:    codename,
		Name:        jsonbFrom(req.Name),
		Description: jsonbFrom(req.Description),
		SortOrder:   req.SortOrder,
		IsDefault:   req.IsDefault,
	}
	if err := db.DB(ctx).CreateEnumValue(ctx, schema, value); err != nil {
		return nil, mapDbError(err, ErrValueNotFound)
	}
	return enumValueDTO(value), nil
}

// UpdateEnumValue applies the request as a version-checked patch. Flipping
// the default flag on demotes the current default; an explicit sort order
// renumbers the list.
func UpdateEnumValue(ctx context.Context, valueID uuid.UUID, req *UpdateEnumValueRequest) (*EnumValueDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	if err := ensureDefaultConstraint(ctx, schema); err != nil {
		return nil, err
	}
	d := db.DB(ctx)
	current, err := d.GetEnumValue(ctx, schema, valueID)
	if err != nil {
		return nil, mapDbError(err, ErrValueNotFound)
	}

	patch := postgresql.NewPatch()
	if req.Codename != nil {
		codename := NormalizeCodename(*req.Codename)
		if err := ValidateCodename(codename); err != nil {
			return nil, err
		}
		patch.Set("codename", codename)
	}
	if req.Name != nil {
		patch.Set("name", jsonbFrom(req.Name))
	}
	if req.Description != nil {
		patch.Set("description", jsonbFrom(req.Description))
	}
	if req.SortOrder != nil {
		patch.Set("sort_order", *req.SortOrder)
	}
	if req.IsDefault != nil {
		patch.Set("is_default", *req.IsDefault)
	}

	if _, err := d.UpdateEnumValue(ctx, schema, current.ObjectID, valueID, req.Version, patch); err != nil {
		return nil, mapDbError(err, ErrValueNotFound)
	}
	updated, err := d.GetEnumValue(ctx, schema, valueID)
	if err != nil {
		return nil, mapDbError(err, ErrValueNotFound)
	}
	return enumValueDTO(updated), nil
}

// MoveEnumValue shifts the value one step within the enumeration's order.
func MoveEnumValue(ctx context.Context, valueID uuid.UUID, direction mhcommon.MoveDirection) apperrors.Error {
	if !direction.IsValid() {
		return ErrInvalidRequest.Msg("invalid move direction")
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	d := db.DB(ctx)
	value, err := d.GetEnumValue(ctx, schema, valueID)
	if err != nil {
		return mapDbError(err, ErrValueNotFound)
	}
	return mapDbError(d.MoveEnumValue(ctx, schema, value.ObjectID, valueID, direction), ErrValueNotFound)
}

// enumValueBlockers collects everything still referencing the value: ENUM
// attributes storing it as their UI default, and elements storing it in
// their payload.
func enumValueBlockers(ctx context.Context, schema string, value *models.EnumValue) (dberror.BlockerList, apperrors.Error) {
	d := db.DB(ctx)
	attrs, err := d.FindAttributesUsingEnumDefault(ctx, schema, value.ObjectID, value.ValueID)
	if err != nil {
		return nil, err
	}
	elements, err := d.FindElementsUsingEnumValue(ctx, schema, value.ObjectID, value.ValueID)
	if err != nil {
		return nil, err
	}
	return append(attrs, elements...), nil
}

// DeleteEnumValue moves the value to the trash, refusing while any attribute
// default or element payload still references it.
func DeleteEnumValue(ctx context.Context, valueID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	d := db.DB(ctx)
	value, err := d.GetEnumValue(ctx, schema, valueID)
	if err != nil {
		return mapDbError(err, ErrValueNotFound)
	}
	blockers, err := enumValueBlockers(ctx, schema, value)
	if err != nil {
		return err
	}
	if len(blockers) > 0 {
		return ErrDeletionBlocked.Err(blockers)
	}
	return mapDbError(d.SoftDeleteEnumValue(ctx, schema, valueID), ErrValueNotFound)
}

// RestoreEnumValue recovers the value from the trash. The default flag is not
// restored with it.
func RestoreEnumValue(ctx context.Context, valueID uuid.UUID) (*EnumValueDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := db.DB(ctx)
	if err := d.RestoreEnumValue(ctx, schema, valueID); err != nil {
		return nil, mapDbError(err, ErrValueNotFound)
	}
	value, err := d.GetEnumValue(ctx, schema, valueID)
	if err != nil {
		return nil, mapDbError(err, ErrValueNotFound)
	}
	return enumValueDTO(value), nil
}

// PermanentDeleteEnumValue hard-deletes the value after the same blocker
// check as the soft delete.
func PermanentDeleteEnumValue(ctx context.Context, valueID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	d := db.DB(ctx)
	value, err := d.GetEnumValue(ctx, schema, valueID)
	if err != nil {
		return mapDbError(err, ErrValueNotFound)
	}
	blockers, err := enumValueBlockers(ctx, schema, value)
	if err != nil {
		return err
	}
	if len(blockers) > 0 {
		return ErrDeletionBlocked.Err(blockers)
	}
	return mapDbError(d.PermanentDeleteEnumValue(ctx, schema, valueID), ErrValueNotFound)
}
