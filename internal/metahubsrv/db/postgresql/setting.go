package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
)

const settingColumns = `setting_id, key, value, ` + stateColumns

func scanSetting(scan func(dest ...any) error) (*models.Setting, error) {
	s := &models.Setting{}
	dest := []any{&s.SettingID, &s.Key, &s.Value}
	dest = append(dest, stateScanDest(&s.State)...)
	if err := scan(dest...); err != nil {
		return nil, err
	}
	return s, nil
}

// GetSetting retrieves one visible setting by key.
func (rm *registryManager) GetSetting(ctx context.Context, schema, key string) (*models.Setting, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+settingColumns+` FROM %s WHERE key = $1 AND `+visibleCond+`;`,
		qualified(schema, tableSettings))
	s, errdb := scanSetting(rm.conn().QueryRowContext(ctx, query, key).Scan)
	if errdb != nil {
		if errdb == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("setting not found")
		}
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to retrieve setting")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return s, nil
}

// ListSettings returns all visible settings ordered by key.
func (rm *registryManager) ListSettings(ctx context.Context, schema string) ([]*models.Setting, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	query := fmt.Sprintf(`SELECT `+settingColumns+` FROM %s WHERE `+visibleCond+` ORDER BY key;`,
		qualified(schema, tableSettings))
	rows, errdb := rm.conn().QueryContext(ctx, query)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to list settings")
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	defer rows.Close()

	var settings []*models.Setting
	for rows.Next() {
		s, errdb := scanSetting(rows.Scan)
		if errdb != nil {
			return nil, dberror.ErrDatabase.Err(errdb)
		}
		settings = append(settings, s)
	}
	if errdb := rows.Err(); errdb != nil {
		return nil, dberror.ErrDatabase.Err(errdb)
	}
	return settings, nil
}

// SetSetting upserts a setting by key. The partial unique index on key scopes
// the conflict to visible rows, so a key in trash does not shadow a new one.
func (rm *registryManager) SetSetting(ctx context.Context, schema, key string, value pgtype.JSONB) (*models.Setting, apperrors.Error) {
	if !isValidSchemaName(schema) {
		return nil, dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	_, userID, err := tenantAndUserFromContext(ctx)
	if err != nil {
		return nil, err
	}
	writer := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query := fmt.Sprintf(`
		INSERT INTO %s (setting_id, key, value, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (key) WHERE NOT is_deleted AND NOT mh_deleted
		DO UPDATE SET value = EXCLUDED.value, version = %s.version + 1, updated_at = now(), updated_by = EXCLUDED.updated_by
		RETURNING `+settingColumns+`;`,
		qualified(schema, tableSettings), tableSettings)
	row := rm.conn().QueryRowContext(ctx, query, uuid.New(), key, value, writer)
	s, errdb := scanSetting(row.Scan)
	if errdb != nil {
		return nil, mapPgError(ctx, errdb, "failed to upsert setting")
	}
	return s, nil
}

// DeleteSetting marks the setting deleted at the metahub level.
func (rm *registryManager) DeleteSetting(ctx context.Context, schema, key string) apperrors.Error {
	if !isValidSchemaName(schema) {
		return dberror.ErrInvalidInput.Msg("invalid schema name")
	}
	_, userID, err := tenantAndUserFromContext(ctx)
	if err != nil {
		return err
	}
	deleter := uuid.NullUUID{UUID: userID, Valid: userID != uuid.Nil}
	query := fmt.Sprintf(`
		UPDATE %s SET mh_deleted = true, mh_deleted_at = now(), mh_deleted_by = $2, updated_at = now()
		WHERE key = $1 AND `+visibleCond+`;`, qualified(schema, tableSettings))
	result, errdb := rm.conn().ExecContext(ctx, query, key, deleter)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to delete setting")
		return dberror.ErrDatabase.Err(errdb)
	}
	rows, errdb := result.RowsAffected()
	if errdb != nil {
		return dberror.ErrDatabase.Err(errdb)
	}
	if rows == 0 {
		return dberror.ErrNotFound.Msg("setting not found")
	}
	return nil
}
