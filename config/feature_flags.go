package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with gradual rollout and role
// targeting. Flags are read at startup and may be flipped at runtime.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100), bucketed by a hash of the user id
	RolloutPercent int

	// Roles the flag applies to. Empty means all roles.
	TargetRoles []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID string
	Role   string
}

// Predefined feature flag names.
const (
	// === Auth ===
	FeatureAuthDemoShortcut = "auth.demo_role_shortcut" // sign in with a role and no credentials
	FeatureAuthGoogle       = "auth.oauth_google"       // "Continue with Google"
	FeatureAuthSignUp       = "auth.signup"             // self-service registration

	// === Dashboards ===
	FeatureDashboardInsights = "dashboard.subject_insights" // strongest/weakest subject cards
	FeatureAdminClassStats   = "admin.class_stats"          // principal overview
	FeatureTeacherAttendance = "teacher.attendance"         // daily class register

	// === Infrastructure ===
	FeatureRedisDataCache = "cache.redis_data" // share dashboard cache through Redis
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureAuthDemoShortcut] = &Feature{
		Name:           FeatureAuthDemoShortcut,
		Description:    "Authenticate with only a role (demo builds)",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureAuthGoogle] = &Feature{
		Name:           FeatureAuthGoogle,
		Description:    "Google sign-in through the backend OAuth flow",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAuthSignUp] = &Feature{
		Name:           FeatureAuthSignUp,
		Description:    "Allow new accounts from the client",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureDashboardInsights] = &Feature{
		Name:           FeatureDashboardInsights,
		Description:    "Strongest and weakest subject on the student dashboard",
		Enabled:        true,
		RolloutPercent: 100,
		TargetRoles:    []string{"student"},
	}

	ff.features[FeatureAdminClassStats] = &Feature{
		Name:           FeatureAdminClassStats,
		Description:    "Class overview for the principal",
		Enabled:        true,
		RolloutPercent: 100,
		TargetRoles:    []string{"admin"},
	}

	ff.features[FeatureTeacherAttendance] = &Feature{
		Name:           FeatureTeacherAttendance,
		Description:    "Daily attendance register for class teachers",
		Enabled:        true,
		RolloutPercent: 100,
		TargetRoles:    []string{"teacher"},
	}

	ff.features[FeatureRedisDataCache] = &Feature{
		Name:           FeatureRedisDataCache,
		Description:    "Back the dashboard cache with Redis",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_AUTH_DEMO_ROLE_SHORTCUT=true
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			feature.RolloutPercent = 0
			if b {
				feature.RolloutPercent = 100
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "auth.oauth_google" -> "FEATURE_AUTH_OAUTH_GOOGLE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.UserID != "" {
		if overrides, ok := ff.userOverrides[ctx.UserID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if len(feature.TargetRoles) > 0 && ctx != nil && ctx.Role != "" {
		matched := false
		for _, r := range feature.TargetRoles {
			if r == ctx.Role {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout uses consistent hashing so users stay in their bucket.
func isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride sets a feature override for a specific user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
