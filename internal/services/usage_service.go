package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/pkg/logger"
	"github.com/sirupsen/logrus"
)

const (
	defaultUsageAPIURL = "https://api.anthropic.com/v1/organizations/usage_report/claude_code"
	usageAPIVersion    = "2023-06-01"
	usagePageLimit     = 1000

	// First sync with no recorded watermark reaches back this far.
	usageBackfillMonths = 6
)

// UsageToolStats is one tool's accepted/rejected counters
type UsageToolStats struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// UsageRecord is one daily per-actor row from the usage-metering API
type UsageRecord struct {
	Actor struct {
		Type         string `json:"type"`
		EmailAddress string `json:"email_address"`
	} `json:"actor"`
	Date        string `json:"date"`
	NumSessions *int   `json:"num_sessions"`
	LinesOfCode *struct {
		Added   int `json:"added"`
		Removed int `json:"removed"`
	} `json:"lines_of_code"`
	Commits       *int            `json:"commits_by_claude_code"`
	PullRequests  *int            `json:"pull_requests_by_claude_code"`
	EditTool      *UsageToolStats `json:"edit_tool"`
	WriteTool     *UsageToolStats `json:"write_tool"`
	MultiEditTool *UsageToolStats `json:"multi_edit_tool"`
}

type usagePage struct {
	Data       []UsageRecord `json:"data"`
	HasMore    bool          `json:"has_more"`
	NextCursor *string       `json:"next_cursor"`
}

// UsageService pulls daily usage-metering records and upserts them
// keyed by (email, date). Records are matched to users by email at
// query time, so rows for unknown emails are kept, not dropped.
type UsageService struct {
	usageRepo   *repositories.AIUsageRepository
	userRepo    *repositories.UserRepository
	jobRepo     *repositories.SyncJobRepository
	settings    *SettingsService
	settingRepo *repositories.SettingRepository
	httpClient  *http.Client
	apiURL      string
	log         *logrus.Entry
	sleep       func(time.Duration)
	now         func() time.Time
}

func NewUsageService(
	usageRepo *repositories.AIUsageRepository,
	userRepo *repositories.UserRepository,
	jobRepo *repositories.SyncJobRepository,
	settings *SettingsService,
	settingRepo *repositories.SettingRepository,
) *UsageService {
	return &UsageService{
		usageRepo:   usageRepo,
		userRepo:    userRepo,
		jobRepo:     jobRepo,
		settings:    settings,
		settingRepo: settingRepo,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		apiURL:      defaultUsageAPIURL,
		log:         logger.WithField("component", "usage_sync"),
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// Run executes one usage-sync job to completion, finalizing its status
func (s *UsageService) Run(ctx context.Context, job *models.SyncJob) error {
	job.MarkStarted()
	if err := s.jobRepo.Update(job); err != nil {
		return err
	}

	err := s.sync(ctx, job)
	if err != nil {
		job.SetError(err.Error())
		job.MarkFailed()
		if uerr := s.jobRepo.Update(job); uerr != nil {
			s.log.WithError(uerr).Error("Failed to mark usage job as failed")
		}
		return err
	}

	job.MarkCompleted()
	return s.jobRepo.Update(job)
}

func (s *UsageService) sync(ctx context.Context, job *models.SyncJob) error {
	key, err := s.settings.UsageAPIKey()
	if err != nil {
		return err
	}

	startingAt, err := s.startDate()
	if err != nil {
		return err
	}
	s.log.Infof("Fetching usage records from %s", startingAt)

	knownEmails, err := s.knownEmails()
	if err != nil {
		return err
	}

	unmapped := make(map[string]struct{})
	var cursor *string
	pageNum := 0

	for {
		pageNum++
		page, err := s.fetchPage(ctx, key, startingAt, cursor)
		if err != nil {
			return err
		}
		s.log.Infof("Page %d: %d usage records", pageNum, len(page.Data))

		for i := range page.Data {
			record := &page.Data[i]
			if record.Actor.EmailAddress == "" {
				continue
			}

			usage := transformUsageRecord(record)
			if err := s.usageRepo.Upsert(usage); err != nil {
				return err
			}

			job.PRsProcessed++
			if _, ok := knownEmails[usage.Email]; !ok {
				unmapped[usage.Email] = struct{}{}
			}
		}

		if err := s.jobRepo.UpdatePRsProcessed(job.ID, job.PRsProcessed); err != nil {
			return err
		}

		if !page.HasMore || page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	if err := s.settingRepo.Set(models.SettingUsageLastSynced, FormatDate(s.now())); err != nil {
		return err
	}

	s.log.Infof("Usage sync complete: %d records, %d unmapped emails", job.PRsProcessed, len(unmapped))
	return nil
}

// TestConnection fetches one page for today to validate an API key
func (s *UsageService) TestConnection(ctx context.Context, key string) error {
	_, err := s.fetchPage(ctx, key, FormatDate(s.now()), nil)
	return err
}

// startDate returns the watermark of the previous run, or the backfill
// horizon when none is recorded
func (s *UsageService) startDate() (string, error) {
	raw, err := s.settingRepo.Get(models.SettingUsageLastSynced)
	if err != nil {
		return "", err
	}
	if raw != nil && *raw != "" {
		return *raw, nil
	}
	return FormatDate(s.now().AddDate(0, -usageBackfillMonths, 0)), nil
}

func (s *UsageService) knownEmails() (map[string]struct{}, error) {
	users, err := s.userRepo.GetAll()
	if err != nil {
		return nil, err
	}

	emails := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u.Email != nil && *u.Email != "" {
			emails[strings.ToLower(*u.Email)] = struct{}{}
		}
	}
	return emails, nil
}

func (s *UsageService) fetchPage(ctx context.Context, key, startingAt string, cursor *string) (*usagePage, error) {
	var page usagePage
	err := withRetry(ctx, s.log, fmt.Sprintf("usage from %s", startingAt), s.sleep, func() error {
		params := url.Values{}
		params.Set("starting_at", startingAt)
		params.Set("limit", fmt.Sprintf("%d", usagePageLimit))
		if cursor != nil {
			params.Set("cursor", *cursor)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", usageAPIVersion)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			return &apiError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("usage API error: %s", resp.Status)}
		}

		page = usagePage{}
		return json.Unmarshal(body, &page)
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func transformUsageRecord(record *UsageRecord) *models.AIUsage {
	usage := models.NewAIUsage(strings.ToLower(record.Actor.EmailAddress), record.Date)
	if record.NumSessions != nil {
		usage.NumSessions = *record.NumSessions
	}
	if record.LinesOfCode != nil {
		usage.LinesAdded = record.LinesOfCode.Added
		usage.LinesRemoved = record.LinesOfCode.Removed
	}
	if record.Commits != nil {
		usage.Commits = *record.Commits
	}
	if record.PullRequests != nil {
		usage.PullRequests = *record.PullRequests
	}
	if record.EditTool != nil {
		usage.EditAccepted = record.EditTool.Accepted
		usage.EditRejected = record.EditTool.Rejected
	}
	if record.WriteTool != nil {
		usage.WriteAccepted = record.WriteTool.Accepted
		usage.WriteRejected = record.WriteTool.Rejected
	}
	if record.MultiEditTool != nil {
		usage.MultiEditAccepted = record.MultiEditTool.Accepted
		usage.MultiEditRejected = record.MultiEditTool.Rejected
	}
	return usage
}
