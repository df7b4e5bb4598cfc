package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usageFixedNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

type usageFixture struct {
	db          *sql.DB
	userRepo    *repositories.UserRepository
	jobRepo     *repositories.SyncJobRepository
	settings    *SettingsService
	settingRepo *repositories.SettingRepository
	service     *UsageService
}

func newUsageFixture(t *testing.T, apiURL string) *usageFixture {
	t.Helper()
	db := newTestDB(t)

	f := &usageFixture{
		db:          db,
		userRepo:    repositories.NewUserRepository(db),
		jobRepo:     repositories.NewSyncJobRepository(db),
		settingRepo: repositories.NewSettingRepository(db),
	}
	f.settings = NewSettingsService(f.settingRepo)

	f.service = NewUsageService(
		repositories.NewAIUsageRepository(db),
		f.userRepo, f.jobRepo, f.settings, f.settingRepo,
	)
	f.service.apiURL = apiURL
	f.service.log = logger.WithField("component", "usage-test")
	f.service.sleep = func(time.Duration) {}
	f.service.now = func() time.Time { return usageFixedNow }
	return f
}

func (f *usageFixture) runJob(t *testing.T) (*models.SyncJob, error) {
	t.Helper()
	job := models.NewSyncJob(models.JobTypeUsageSync, nil)
	require.NoError(t, f.jobRepo.Create(job))

	err := f.service.Run(context.Background(), job)

	stored, gerr := f.jobRepo.GetByID(job.ID)
	require.NoError(t, gerr)
	return stored, err
}

func usageRecordJSON(email, date string, sessions, accepted, rejected int) string {
	return fmt.Sprintf(`{
		"actor": {"type": "user_actor", "email_address": %q},
		"date": %q,
		"num_sessions": %d,
		"lines_of_code": {"added": 120, "removed": 30},
		"commits_by_claude_code": 2,
		"pull_requests_by_claude_code": 1,
		"edit_tool": {"accepted": %d, "rejected": %d}
	}`, email, date, sessions, accepted, rejected)
}

func usagePageJSON(records []string, nextCursor string) string {
	hasMore := "false"
	cursor := "null"
	if nextCursor != "" {
		hasMore = "true"
		cursor = fmt.Sprintf("%q", nextCursor)
	}
	joined := ""
	for i, r := range records {
		if i > 0 {
			joined += ","
		}
		joined += r
	}
	return fmt.Sprintf(`{"data": [%s], "has_more": %s, "next_cursor": %s}`, joined, hasMore, cursor)
}

func TestUsageSyncPaginatesAndUpserts(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.Equal(t, usageAPIVersion, r.Header.Get("anthropic-version"))

		if r.URL.Query().Get("cursor") == "page2" {
			fmt.Fprint(w, usagePageJSON([]string{
				usageRecordJSON("Carol@Acme.dev", "2026-07-02", 5, 2, 8),
			}, ""))
			return
		}
		fmt.Fprint(w, usagePageJSON([]string{
			usageRecordJSON("alice@acme.dev", "2026-07-01", 3, 10, 1),
			usageRecordJSON("bob@acme.dev", "2026-07-01", 7, 4, 0),
		}, "page2"))
	}))
	defer server.Close()

	f := newUsageFixture(t, server.URL)
	require.NoError(t, f.settings.SetUsageAPIKey("secret-key"))

	alice := models.NewUser("alice")
	alice.Email = strPtr("alice@acme.dev")
	require.NoError(t, f.userRepo.Create(alice))

	job, err := f.runJob(t)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.PRsProcessed)
	require.Len(t, requests, 2)

	// No watermark yet, so the first request reaches back six months.
	backfill := FormatDate(usageFixedNow.AddDate(0, -usageBackfillMonths, 0))
	assert.Contains(t, requests[0], "starting_at="+backfill)
	assert.Contains(t, requests[1], "cursor=page2")

	var count int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM ai_usage`).Scan(&count))
	assert.Equal(t, 3, count)

	// Emails are normalized to lowercase on the way in.
	var sessions int
	require.NoError(t, f.db.QueryRow(
		`SELECT num_sessions FROM ai_usage WHERE email = ? AND date = ?`,
		"carol@acme.dev", "2026-07-02",
	).Scan(&sessions))
	assert.Equal(t, 5, sessions)

	// The watermark is advanced for the next run.
	watermark, err := f.settingRepo.Get(models.SettingUsageLastSynced)
	require.NoError(t, err)
	require.NotNil(t, watermark)
	assert.Equal(t, FormatDate(usageFixedNow), *watermark)
}

func TestUsageSyncIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, usagePageJSON([]string{
			usageRecordJSON("alice@acme.dev", "2026-07-01", 3, 10, 1),
		}, ""))
	}))
	defer server.Close()

	f := newUsageFixture(t, server.URL)
	require.NoError(t, f.settings.SetUsageAPIKey("secret-key"))

	_, err := f.runJob(t)
	require.NoError(t, err)
	_, err = f.runJob(t)
	require.NoError(t, err)

	var count int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM ai_usage`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUsageSyncResumesFromWatermark(t *testing.T) {
	var starts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		starts = append(starts, r.URL.Query().Get("starting_at"))
		fmt.Fprint(w, usagePageJSON(nil, ""))
	}))
	defer server.Close()

	f := newUsageFixture(t, server.URL)
	require.NoError(t, f.settings.SetUsageAPIKey("secret-key"))
	require.NoError(t, f.settingRepo.Set(models.SettingUsageLastSynced, "2026-07-20"))

	job, err := f.runJob(t)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 0, job.PRsProcessed)

	require.Len(t, starts, 1)
	assert.Equal(t, "2026-07-20", starts[0])
}

func TestUsageSyncSkipsRecordsWithoutEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, usagePageJSON([]string{
			`{"actor": {"type": "api_actor", "email_address": ""}, "date": "2026-07-01", "num_sessions": 9}`,
			usageRecordJSON("alice@acme.dev", "2026-07-01", 3, 10, 1),
		}, ""))
	}))
	defer server.Close()

	f := newUsageFixture(t, server.URL)
	require.NoError(t, f.settings.SetUsageAPIKey("secret-key"))

	job, err := f.runJob(t)
	require.NoError(t, err)
	assert.Equal(t, 1, job.PRsProcessed)
}

func TestUsageSyncRetriesTransientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, usagePageJSON(nil, ""))
	}))
	defer server.Close()

	f := newUsageFixture(t, server.URL)
	require.NoError(t, f.settings.SetUsageAPIKey("secret-key"))

	job, err := f.runJob(t)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, attempts)
}

func TestUsageSyncFailsOnAuthError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	f := newUsageFixture(t, server.URL)
	require.NoError(t, f.settings.SetUsageAPIKey("bad-key"))

	job, err := f.runJob(t)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "401")
}

func TestUsageSyncFailsWithoutKey(t *testing.T) {
	f := newUsageFixture(t, "http://127.0.0.1:0")

	job, err := f.runJob(t)
	assert.ErrorIs(t, err, ErrNoUsageAPIKey)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

func TestUsageTestConnection(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		fmt.Fprint(w, usagePageJSON(nil, ""))
	}))
	defer server.Close()

	f := newUsageFixture(t, server.URL)
	require.NoError(t, f.service.TestConnection(context.Background(), "probe-key"))
	assert.Equal(t, "probe-key", gotKey)
}
