package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsUpsert(t *testing.T) {
	ctx := setupTenant(t)

	s, err := SetSetting(ctx, &SetSettingRequest{Key: "default_locale", Value: json.RawMessage(`"en"`)})
	require.Nil(t, err)
	assert.Equal(t, 1, s.Audit.Version)

	s, err = SetSetting(ctx, &SetSettingRequest{Key: "default_locale", Value: json.RawMessage(`"de"`)})
	require.Nil(t, err)
	assert.Equal(t, 2, s.Audit.Version)
	assert.JSONEq(t, `"de"`, string(s.Value))

	got, err := GetSetting(ctx, "default_locale")
	require.Nil(t, err)
	assert.JSONEq(t, `"de"`, string(got.Value))

	_, err = SetSetting(ctx, &SetSettingRequest{Key: "broken", Value: json.RawMessage(`{"a":`)})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSettingsListAndDelete(t *testing.T) {
	ctx := setupTenant(t)

	_, err := SetSetting(ctx, &SetSettingRequest{Key: "b_key", Value: json.RawMessage(`1`)})
	require.Nil(t, err)
	_, err = SetSetting(ctx, &SetSettingRequest{Key: "a_key", Value: json.RawMessage(`2`)})
	require.Nil(t, err)

	settings, err := ListSettings(ctx)
	require.Nil(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, "a_key", settings[0].Key)
	assert.Equal(t, "b_key", settings[1].Key)

	require.Nil(t, DeleteSetting(ctx, "a_key"))
	_, err = GetSetting(ctx, "a_key")
	assert.NotNil(t, err)

	err = DeleteSetting(ctx, "never_existed")
	assert.NotNil(t, err)
}
