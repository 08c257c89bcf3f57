package postgresql

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

// FindAttributesReferencing returns every visible REFERENCE attribute whose
// target matches the given object id and kind. A non-empty result blocks the
// target's permanent deletion.
func (rm *registryManager) FindAttributesReferencing(ctx context.Context, schema string, targetID uuid.UUID, kind mhcommon.ObjectKind) (dberror.BlockerList, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT attribute_id, codename, object_id FROM %s
		WHERE data_type IN ($1, $2) AND target_object_id = $3 AND target_object_kind = $4 AND `+visibleCond+`;`,
		qualified(schema, tableAttributes))
	rows, errdb := rm.conn().QueryContext(ctx, query,
		mhcommon.DataTypeReference, mhcommon.DataTypeEnumeration, targetID, kind)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to query referencing attributes")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	var blockers dberror.BlockerList
	for rows.Next() {
		b := dberror.Blocker{EntityType: mhcommon.EntityTypeAttribute}
		if errdb := rows.Scan(&b.EntityID, &b.Codename, &b.ObjectID); errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		blockers = append(blockers, b)
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return blockers, nil
}

// FindAttributesUsingEnumDefault returns every visible ENUM attribute whose
// UI config stores the given enumeration value as its default. The candidate
// set is narrowed in SQL to attributes targeting the value's enumeration; the
// default key is then read out of the config JSON.
func (rm *registryManager) FindAttributesUsingEnumDefault(ctx context.Context, schema string, enumObjectID, valueID uuid.UUID) (dberror.BlockerList, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT attribute_id, codename, object_id, ui_config FROM %s
		WHERE data_type = $1 AND target_object_id = $2 AND `+visibleCond+`;`,
		qualified(schema, tableAttributes))
	rows, errdb := rm.conn().QueryContext(ctx, query, mhcommon.DataTypeEnumeration, enumObjectID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to query enum attributes")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	want := valueID.String()
	var blockers dberror.BlockerList
	for rows.Next() {
		b := dberror.Blocker{EntityType: mhcommon.EntityTypeAttribute}
		var uiConfig []byte
		if errdb := rows.Scan(&b.EntityID, &b.Codename, &b.ObjectID, &uiConfig); errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		def := gjson.GetBytes(uiConfig, "defaultValue")
		if !def.Exists() {
			def = gjson.GetBytes(uiConfig, "default")
		}
		if def.String() == want {
			blockers = append(blockers, b)
		}
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return blockers, nil
}

// FindElementsUsingEnumValue returns every visible element storing the given
// enumeration value in its JSON payload under an ENUM attribute's codename
// key. Each ENUM attribute targeting the value's enumeration contributes its
// own catalog's elements to the scan.
func (rm *registryManager) FindElementsUsingEnumValue(ctx context.Context, schema string, enumObjectID, valueID uuid.UUID) (dberror.BlockerList, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT a.codename, e.element_id, e.object_id, e.data
		FROM %s a JOIN %s e ON e.object_id = a.object_id
		WHERE a.data_type = $1 AND a.target_object_id = $2
		AND a.is_deleted = false AND a.mh_deleted = false
		AND e.is_deleted = false AND e.mh_deleted = false;`,
		qualified(schema, tableAttributes), qualified(schema, tableElements))
	rows, errdb := rm.conn().QueryContext(ctx, query, mhcommon.DataTypeEnumeration, enumObjectID)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to query elements for enum usage")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	want := valueID.String()
	seen := make(map[uuid.UUID]bool)
	var blockers dberror.BlockerList
	for rows.Next() {
		var codename string
		var elementID, objectID uuid.UUID
		var data []byte
		if errdb := rows.Scan(&codename, &elementID, &objectID, &data); errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		if seen[elementID] {
			continue
		}
		stored := gjson.GetBytes(data, codename)
		match := stored.String() == want
		if !match && stored.IsArray() {
			for _, item := range stored.Array() {
				if item.String() == want {
					match = true
					break
				}
			}
		}
		if match {
			seen[elementID] = true
			blockers = append(blockers, dberror.Blocker{
				EntityType: mhcommon.EntityTypeElement,
				EntityID:   elementID,
				Codename:   codename,
				ObjectID:   objectID,
			})
		}
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return blockers, nil
}
