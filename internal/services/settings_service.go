package services

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/pkg/logger"
)

// DefaultChurnWindowDays is used when churn_window_days is absent or malformed
const DefaultChurnWindowDays = 14

// ErrNoGithubToken signals that no access token is configured; this is
// fatal for a sync and never retried
var ErrNoGithubToken = errors.New("GitHub is not connected: configure an access token first")

// ErrNoUsageAPIKey signals that no usage-metering API key is configured
var ErrNoUsageAPIKey = errors.New("usage metering is not connected: configure an admin API key first")

// SyncSettings is the typed view of the settings table consumed by the
// core engines. Absent or malformed values fall back to defaults.
type SyncSettings struct {
	ExcludeGlobs    []string
	ChurnWindowDays int
	GithubToken     string
	UsageAPIKey     string
}

type SettingsService struct {
	settingRepo *repositories.SettingRepository
}

func NewSettingsService(settingRepo *repositories.SettingRepository) *SettingsService {
	return &SettingsService{settingRepo: settingRepo}
}

// Load parses every known key into a typed struct
func (s *SettingsService) Load() (*SyncSettings, error) {
	globs, err := s.ExcludeGlobs()
	if err != nil {
		return nil, err
	}

	windowDays, err := s.ChurnWindowDays()
	if err != nil {
		return nil, err
	}

	token, err := s.value(models.SettingGithubPAT)
	if err != nil {
		return nil, err
	}

	usageKey, err := s.value(models.SettingUsageAPIKey)
	if err != nil {
		return nil, err
	}

	return &SyncSettings{
		ExcludeGlobs:    globs,
		ChurnWindowDays: windowDays,
		GithubToken:     token,
		UsageAPIKey:     usageKey,
	}, nil
}

// ExcludeGlobs returns the configured exclusion patterns, empty when
// absent or malformed
func (s *SettingsService) ExcludeGlobs() ([]string, error) {
	raw, err := s.settingRepo.Get(models.SettingExcludeGlobs)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var globs []string
	if err := json.Unmarshal([]byte(*raw), &globs); err != nil {
		logger.WithError(err).Warn("Malformed exclude_globs setting, ignoring")
		return nil, nil
	}

	return globs, nil
}

// SetExcludeGlobs stores the exclusion patterns as a JSON string array
func (s *SettingsService) SetExcludeGlobs(globs []string) error {
	encoded, err := json.Marshal(globs)
	if err != nil {
		return err
	}
	return s.settingRepo.Set(models.SettingExcludeGlobs, string(encoded))
}

// ChurnWindowDays returns the churn window, defaulting when absent,
// malformed or non-positive
func (s *SettingsService) ChurnWindowDays() (int, error) {
	raw, err := s.settingRepo.Get(models.SettingChurnWindowDays)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return DefaultChurnWindowDays, nil
	}

	days, err := strconv.Atoi(*raw)
	if err != nil || days <= 0 {
		logger.Warnf("Malformed churn_window_days setting %q, using default", *raw)
		return DefaultChurnWindowDays, nil
	}

	return days, nil
}

// SetChurnWindowDays stores the churn window size in days
func (s *SettingsService) SetChurnWindowDays(days int) error {
	return s.settingRepo.Set(models.SettingChurnWindowDays, strconv.Itoa(days))
}

// GithubToken returns the configured access token or ErrNoGithubToken
func (s *SettingsService) GithubToken() (string, error) {
	token, err := s.value(models.SettingGithubPAT)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoGithubToken
	}
	return token, nil
}

// SetGithubToken stores the access token
func (s *SettingsService) SetGithubToken(token string) error {
	return s.settingRepo.Set(models.SettingGithubPAT, token)
}

// UsageAPIKey returns the configured usage-metering key or ErrNoUsageAPIKey
func (s *SettingsService) UsageAPIKey() (string, error) {
	key, err := s.value(models.SettingUsageAPIKey)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", ErrNoUsageAPIKey
	}
	return key, nil
}

// SetUsageAPIKey stores the usage-metering API key
func (s *SettingsService) SetUsageAPIKey(key string) error {
	return s.settingRepo.Set(models.SettingUsageAPIKey, key)
}

func (s *SettingsService) value(key string) (string, error) {
	raw, err := s.settingRepo.Get(key)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", nil
	}
	return *raw, nil
}
