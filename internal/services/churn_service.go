package services

import (
	"sort"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/pkg/logger"
)

// ChurnService estimates what fraction of newly added lines were
// reworked by a later merge within a rolling window.
type ChurnService struct {
	prRepo   *repositories.PullRequestRepository
	fileRepo *repositories.PRFileRepository
	settings *SettingsService
}

func NewChurnService(
	prRepo *repositories.PullRequestRepository,
	fileRepo *repositories.PRFileRepository,
	settings *SettingsService,
) *ChurnService {
	return &ChurnService{
		prRepo:   prRepo,
		fileRepo: fileRepo,
		settings: settings,
	}
}

type churnBucket struct {
	churned int
	total   int
}

// Compute builds weekly churn buckets over [start, end]. For each
// merged PR and each non-excluded file it touched, the first later
// merge within the churn window that touches the same path contributes
// min(origin additions, later additions+deletions) churned lines. A
// file counts once per origin PR.
func (s *ChurnService) Compute(start, end time.Time) ([]*models.ChurnWeek, error) {
	windowDays, err := s.settings.ChurnWindowDays()
	if err != nil {
		return nil, err
	}
	window := time.Duration(windowDays) * 24 * time.Hour

	prs, err := s.prRepo.GetMergedBetween(start, end)
	if err != nil {
		return nil, err
	}

	files, err := s.fileRepo.GetAllNonExcluded()
	if err != nil {
		return nil, err
	}

	filesByPR := make(map[string][]*models.PRFile)
	for _, f := range files {
		filesByPR[f.PullRequestID] = append(filesByPR[f.PullRequestID], f)
	}

	buckets := make(map[int64]*churnBucket)
	for i, pr := range prs {
		week := EpochWeek(pr.MergedAt.Unix())
		bucket := buckets[week]
		if bucket == nil {
			bucket = &churnBucket{}
			buckets[week] = bucket
		}

		for _, file := range filesByPR[pr.ID] {
			bucket.total += file.Additions
			bucket.churned += s.churnedLines(file, prs[i+1:], filesByPR, pr.MergedAt, window)
		}
	}

	weeks := make([]int64, 0, len(buckets))
	for week := range buckets {
		weeks = append(weeks, week)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i] < weeks[j] })

	result := make([]*models.ChurnWeek, 0, len(weeks))
	for _, week := range weeks {
		bucket := buckets[week]
		rate := 0.0
		if bucket.total > 0 {
			rate = Round1(float64(bucket.churned) / float64(bucket.total) * 100)
		}
		result = append(result, &models.ChurnWeek{
			Week:         FormatDate(time.Unix(week, 0)),
			Rate:         rate,
			ChurnedLines: bucket.churned,
			TotalLines:   bucket.total,
		})
	}

	logger.WithField("weeks", len(result)).Debug("Churn computed")
	return result, nil
}

// churnedLines scans later merges for the first one touching the same
// path within the window. The scan breaks as soon as the window is
// exceeded, which keeps the quadratic pass bounded.
func (s *ChurnService) churnedLines(
	file *models.PRFile,
	later []*repositories.MergedPullRequest,
	filesByPR map[string][]*models.PRFile,
	mergedAt time.Time,
	window time.Duration,
) int {
	deadline := mergedAt.Add(window)
	for _, next := range later {
		if next.MergedAt.After(deadline) {
			break
		}
		for _, overlap := range filesByPR[next.ID] {
			if overlap.Filename == file.Filename {
				rework := overlap.Additions + overlap.Deletions
				if rework > file.Additions {
					rework = file.Additions
				}
				return rework
			}
		}
	}
	return 0
}
