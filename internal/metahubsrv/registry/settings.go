package registry

import (
	"context"
	"encoding/json"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db"
)

type SetSettingRequest struct {
	Key   string          `json:"key" validate:"required,max=128"`
	Value json.RawMessage `json:"value" validate:"required"`
}

// GetSetting retrieves one configuration value by key.
func GetSetting(ctx context.Context, key string) (*SettingDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	setting, err := db.DB(ctx).GetSetting(ctx, schema, key)
	if err != nil {
		return nil, mapDbError(err, ErrObjectNotFound.Msg("setting not found: "+key))
	}
	return settingDTO(setting), nil
}

// ListSettings returns all configuration values in key order.
func ListSettings(ctx context.Context) ([]*SettingDTO, apperrors.Error) {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := db.DB(ctx).ListSettings(ctx, schema)
	if err != nil {
		return nil, err
	}
	dtos := make([]*SettingDTO, 0, len(settings))
	for _, s := range settings {
		dtos = append(dtos, settingDTO(s))
	}
	return dtos, nil
}

// SetSetting writes a configuration value, inserting or replacing as
// needed. The value must be valid JSON.
func SetSetting(ctx context.Context, req *SetSettingRequest) (*SettingDTO, apperrors.Error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !json.Valid(req.Value) {
		return nil, ErrInvalidRequest.Msg("setting value is not valid JSON")
	}
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return nil, err
	}
	setting, err := db.DB(ctx).SetSetting(ctx, schema, req.Key, jsonbFrom(req.Value))
	if err != nil {
		return nil, mapDbError(err, ErrObjectNotFound)
	}
	return settingDTO(setting), nil
}

// DeleteSetting removes a configuration value. Deleting an absent key is an
// error so callers notice typos.
func DeleteSetting(ctx context.Context, key string) apperrors.Error {
	schema, err := EnsureSchema(ctx)
	if err != nil {
		return err
	}
	return mapDbError(db.DB(ctx).DeleteSetting(ctx, schema, key), ErrObjectNotFound.Msg("setting not found: "+key))
}
