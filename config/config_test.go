package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORTAL_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SUPABASE_URL", "https://demo.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SCHEDULER_REFRESH_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://demo.supabase.co", cfg.Backend.URL)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "google", cfg.OAuth.Provider)
	assert.Equal(t, 30.0, cfg.Scheduler.RefreshInterval.Seconds())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SUPABASE_URL=https://file.supabase.co\nSUPABASE_ANON_KEY=from-file\nSTORAGE_DRIVER=memory\n"), 0o600))
	t.Setenv("PORTAL_ENV_FILE", path)
	// Load writes into the process environment; register cleanup for the keys.
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("STORAGE_DRIVER", "")
	os.Unsetenv("SUPABASE_URL")
	os.Unsetenv("SUPABASE_ANON_KEY")
	os.Unsetenv("STORAGE_DRIVER")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Backend.AnonKey)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := &Config{
		Storage:   StorageConfig{Driver: StorageBadger},
		Redis:     RedisConfig{Disabled: true},
		Backend:   BackendConfig{MaxRetries: 1},
		Scheduler: SchedulerConfig{RefreshInterval: 1},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL is required")
	assert.Contains(t, err.Error(), "SUPABASE_ANON_KEY is required")
	assert.Contains(t, err.Error(), "STORAGE_SECRET_KEY")
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_AUTH_DEMO_ROLE_SHORTCUT", "true")
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureAuthDemoShortcut, nil))
	assert.True(t, ff.IsEnabled(FeatureAuthGoogle, nil))
	assert.False(t, ff.IsEnabled(FeatureRedisDataCache, nil))
	assert.False(t, ff.IsEnabled("unknown.flag", nil))

	assert.True(t, ff.IsEnabled(FeatureAdminClassStats, &FeatureContext{Role: "admin"}))
	assert.False(t, ff.IsEnabled(FeatureAdminClassStats, &FeatureContext{Role: "teacher"}))
	assert.True(t, ff.IsEnabled(FeatureTeacherAttendance, &FeatureContext{Role: "teacher"}))
	assert.False(t, ff.IsEnabled(FeatureTeacherAttendance, &FeatureContext{Role: "student"}))

	ff.SetUserOverride("u-1", FeatureAuthGoogle, false)
	assert.False(t, ff.IsEnabled(FeatureAuthGoogle, &FeatureContext{UserID: "u-1"}))

	require.NoError(t, ff.DisableFeature(FeatureAuthSignUp))
	assert.False(t, ff.IsEnabled(FeatureAuthSignUp, nil))
	assert.ErrorIs(t, ff.EnableFeature("nope"), ErrFeatureNotFound)
}
