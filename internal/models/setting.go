package models

// Setting is a free-form key/value configuration row
type Setting struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// Configuration keys consumed by the core engines
const (
	SettingExcludeGlobs    = "exclude_globs"       // JSON string array
	SettingChurnWindowDays = "churn_window_days"   // integer as string
	SettingGithubPAT       = "github_pat"          // bearer token
	SettingUsageAPIKey     = "anthropic_admin_key" // usage-metering API key
	SettingUsageLastSynced = "usage_last_synced"   // YYYY-MM-DD of the last usage sync
)
