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

// CreateAttribute adds a field definition to an object. REFERENCE and ENUM
// attributes must name an existing target of the right kind; the hierarchy
// and cap rules are enforced inside the persistence transaction.
func CreateAttribute(ctx context.Context, req *CreateAttributeRequest) (*AttributeDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.DataType.IsValid() {
		return nil, ErrInvalidDataType.Msg(string(req.DataType))
	}
	codename := NormalizeCodename(req.Codename)
	if err := ValidateCodename(codename); err != nil {
		return nil, err
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := db.DB(ctx)

	owner, err := d.GetObject(ctx, schema, req.ObjectID)
	if err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}

	attr := &models.Attribute{
		ObjectID:        owner.ObjectID,
		Codename:        codename,
		DataType:        req.DataType,
		IsRequired:      req.IsRequired,
		IsDisplay:       req.IsDisplay,
		ValidationRules: jsonbFrom(req.ValidationRules),
		UIConfig:        jsonbFrom(req.UIConfig),
	}
	if req.ParentAttributeID != nil {
		attr.ParentAttributeID.UUID = *req.ParentAttributeID
		attr.ParentAttributeID.Valid = true
	}

	switch req.DataType {
	case mhcommon.DataTypeReference, mhcommon.DataTypeEnumeration:
		if req.TargetObjectID == nil {
			return nil, ErrInvalidRequest.Msg("target object is required for " + string(req.DataType))
		}
		target, err := d.GetObject(ctx, schema, *req.TargetObjectID)
		if err != nil {
			return nil, mapDbError(err, ErrObjectNotFound)
		}
		if req.DataType == mhcommon.DataTypeEnumeration && target.Kind != mhcommon.KindEnumeration {
			return nil, ErrNotEnumerationObject.Msg(string(target.Kind))
		}
		attr.TargetObjectID.UUID = target.ObjectID
		attr.TargetObjectID.Valid = true
		attr.TargetObjectKind.String = string(target.Kind)
		attr.TargetObjectKind.Valid = true
	default:
		if req.TargetObjectID != nil {
			return nil, ErrInvalidRequest.Msg("target object is only valid for REFERENCE and ENUM attributes")
		}
	}

	if err := d.CreateAttribute(ctx, schema, attr); err != nil {
		return nil, mapDbError(err, ErrAttributeNotFound)
	}
	return attributeDTO(attr), nil
}

// GetAttribute retrieves one attribute definition.
func GetAttribute(ctx context.Context, attributeID uuid.UUID) (*AttributeDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	attr, err := db.DB(ctx).GetAttribute(ctx, schema, attributeID)
	if err != nil {
		return nil, mapDbError(err, ErrAttributeNotFound)
	}
	return attributeDTO(attr), nil
}

// ListAttributes returns an object's attributes, roots first, ordered within
// each sibling scope.
func ListAttributes(ctx context.Context, objectID uuid.UUID) ([]*AttributeDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	attrs, err := db.DB(ctx).ListAttributes(ctx, schema, objectID)
	if err != nil {
		return nil, err
	}
	dtos := make([]*AttributeDTO, 0, len(attrs))
	for _, a := range attrs {
		dtos = append(dtos, attributeDTO(a))
	}
	return dtos, nil
}

// UpdateAttribute applies the request as a version-checked patch. Data type,
// target, and parent are immutable after creation.
func UpdateAttribute(ctx context.Context, attributeID uuid.UUID, req *UpdateAttributeRequest) (*AttributeDTO, apperrors.Error) {
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
	if req.IsRequired != nil {
		patch.Set("is_required", *req.IsRequired)
	}
	if req.ValidationRules != nil {
		patch.Set("validation_rules", jsonbFrom(req.ValidationRules))
	}
	if req.UIConfig != nil {
		patch.Set("ui_config", jsonbFrom(req.UIConfig))
	}

	d := db.DB(ctx)
	if _, err := d.UpdateAttribute(ctx, schema, attributeID, req.Version, patch); err != nil {
		return nil, mapDbError(err, ErrAttributeNotFound)
	}
	attr, err := d.GetAttribute(ctx, schema, attributeID)
	if err != nil {
		return nil, mapDbError(err, ErrAttributeNotFound)
	}
	return attributeDTO(attr), nil
}

// DeleteAttribute moves the attribute (and, for TABLE attributes, its
// children) to the trash. The display attribute of a scope cannot be deleted
// while other attributes remain; callers reassign the flag first.
func DeleteAttribute(ctx context.Context, attributeID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	d := db.DB(ctx)
	attr, err := d.GetAttribute(ctx, schema, attributeID)
	if err != nil {
		return mapDbError(err, ErrAttributeNotFound)
	}
	if attr.IsDisplay {
		siblings, err := d.ListAttributes(ctx, schema, attr.ObjectID)
		if err != nil {
			return err
		}
		for _, s := range siblings {
			if s.AttributeID != attr.AttributeID && s.ParentAttributeID == attr.ParentAttributeID {
				return ErrInvariantViolation.Msg("reassign the display attribute before deleting it")
			}
		}
	}
	return mapDbError(d.SoftDeleteAttribute(ctx, schema, attributeID), ErrAttributeNotFound)
}

// RestoreAttribute recovers the attribute from the trash.
func RestoreAttribute(ctx context.Context, attributeID uuid.UUID) (*AttributeDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := db.DB(ctx)
	if err := d.RestoreAttribute(ctx, schema, attributeID); err != nil {
		return nil, mapDbError(err, ErrAttributeNotFound)
	}
	attr, err := d.GetAttribute(ctx, schema, attributeID)
	if err != nil {
		return nil, mapDbError(err, ErrAttributeNotFound)
	}
	return attributeDTO(attr), nil
}

// MoveAttribute shifts the attribute one step within its sibling scope.
func MoveAttribute(ctx context.Context, objectID, attributeID uuid.UUID, direction mhcommon.MoveDirection) apperrors.Error {
	if !direction.IsValid() {
		return ErrInvalidRequest.Msg("invalid move direction")
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).MoveAttribute(ctx, schema, objectID, attributeID, direction), ErrAttributeNotFound)
}

// SetDisplayAttribute makes the attribute the sole display attribute of its
// sibling scope.
func SetDisplayAttribute(ctx context.Context, objectID, attributeID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).SetDisplayAttribute(ctx, schema, objectID, attributeID), ErrAttributeNotFound)
}

// ClearDisplayAttribute removes the display flag, unless the scope would be
// left without one.
func ClearDisplayAttribute(ctx context.Context, objectID, attributeID uuid.UUID) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).ClearDisplayAttribute(ctx, schema, objectID, attributeID), ErrAttributeNotFound)
}
