package services

import (
	"testing"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type churnFixture struct {
	repoID   string
	prRepo   *repositories.PullRequestRepository
	fileRepo *repositories.PRFileRepository
	settings *SettingsService
	service  *ChurnService
	nextID   int64
}

func newChurnFixture(t *testing.T) *churnFixture {
	t.Helper()
	db := newTestDB(t)

	repoRepo := repositories.NewRepositoryRepository(db)
	repo := models.NewRepository("acme", "widgets")
	require.NoError(t, repoRepo.Create(repo))

	f := &churnFixture{
		repoID:   repo.ID,
		prRepo:   repositories.NewPullRequestRepository(db),
		fileRepo: repositories.NewPRFileRepository(db),
		settings: NewSettingsService(repositories.NewSettingRepository(db)),
	}
	f.service = NewChurnService(f.prRepo, f.fileRepo, f.settings)
	return f
}

func (f *churnFixture) addMergedPR(t *testing.T, mergedAt time.Time, files ...*models.PRFile) {
	t.Helper()
	f.nextID++
	pr := &models.PullRequest{
		ID:           uuid.New().String(),
		GithubID:     f.nextID,
		RepositoryID: f.repoID,
		Number:       int(f.nextID),
		Title:        "change",
		State:        models.PRStateMerged,
		CreatedAt:    mergedAt.Add(-24 * time.Hour),
		MergedAt:     &mergedAt,
	}
	require.NoError(t, f.prRepo.Create(pr))

	for _, file := range files {
		file.ID = uuid.New().String()
		file.PullRequestID = pr.ID
		require.NoError(t, f.fileRepo.Create(file))
	}
}

func churnFile(name string, additions, deletions int) *models.PRFile {
	return &models.PRFile{Filename: name, Additions: additions, Deletions: deletions}
}

// weekAnchor is the start of an epoch-aligned week, so offsets within
// a test stay inside known buckets
var weekAnchor = time.Unix(EpochWeek(time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC).Unix()), 0).UTC()

func (f *churnFixture) compute(t *testing.T) []*models.ChurnWeek {
	t.Helper()
	weeks, err := f.service.Compute(weekAnchor.Add(-30*24*time.Hour), weekAnchor.Add(60*24*time.Hour))
	require.NoError(t, err)
	return weeks
}

func TestChurnWindowBoundary(t *testing.T) {
	t.Run("merge W-1 days later counts", func(t *testing.T) {
		f := newChurnFixture(t)
		f.addMergedPR(t, weekAnchor, churnFile("core.go", 100, 0))
		f.addMergedPR(t, weekAnchor.Add(13*24*time.Hour), churnFile("core.go", 30, 20))

		weeks := f.compute(t)
		require.NotEmpty(t, weeks)
		assert.Equal(t, 50, weeks[0].ChurnedLines)
		assert.Equal(t, 100, weeks[0].TotalLines)
		assert.Equal(t, 50.0, weeks[0].Rate)
	})

	t.Run("merge W+1 days later does not count", func(t *testing.T) {
		f := newChurnFixture(t)
		f.addMergedPR(t, weekAnchor, churnFile("core.go", 100, 0))
		f.addMergedPR(t, weekAnchor.Add(15*24*time.Hour), churnFile("core.go", 30, 20))

		weeks := f.compute(t)
		require.NotEmpty(t, weeks)
		assert.Equal(t, 0, weeks[0].ChurnedLines)
	})
}

func TestChurnFirstOverlapWins(t *testing.T) {
	f := newChurnFixture(t)
	f.addMergedPR(t, weekAnchor, churnFile("core.go", 100, 0))
	// The earliest later overlap is small; the bigger one behind it
	// must not be counted against the first PR.
	f.addMergedPR(t, weekAnchor.Add(2*24*time.Hour), churnFile("core.go", 0, 15))
	f.addMergedPR(t, weekAnchor.Add(5*24*time.Hour), churnFile("core.go", 500, 500))

	weeks := f.compute(t)
	require.NotEmpty(t, weeks)
	assert.Equal(t, 15, weeks[0].ChurnedLines)
}

func TestChurnSaturatesAtOriginAdditions(t *testing.T) {
	f := newChurnFixture(t)
	f.addMergedPR(t, weekAnchor, churnFile("core.go", 40, 0))
	f.addMergedPR(t, weekAnchor.Add(3*24*time.Hour), churnFile("core.go", 300, 300))

	weeks := f.compute(t)
	require.NotEmpty(t, weeks)
	assert.Equal(t, 40, weeks[0].ChurnedLines)
}

func TestChurnIgnoresExcludedFiles(t *testing.T) {
	f := newChurnFixture(t)
	excluded := churnFile("go.sum", 1000, 0)
	excluded.IsExcluded = true
	rework := churnFile("go.sum", 900, 900)
	rework.IsExcluded = true
	f.addMergedPR(t, weekAnchor, churnFile("core.go", 100, 0), excluded)
	f.addMergedPR(t, weekAnchor.Add(2*24*time.Hour), rework)

	weeks := f.compute(t)
	require.NotEmpty(t, weeks)
	// Only the source file contributes to totals; the lock file's later
	// rework never matches because excluded files are invisible.
	assert.Equal(t, 100, weeks[0].TotalLines)
	assert.Equal(t, 0, weeks[0].ChurnedLines)
}

func TestChurnZeroTotalReportsZeroRate(t *testing.T) {
	f := newChurnFixture(t)
	// A merge that only deletes lines adds nothing to the total.
	f.addMergedPR(t, weekAnchor, churnFile("core.go", 0, 50))

	weeks := f.compute(t)
	require.Len(t, weeks, 1)
	assert.Equal(t, 0, weeks[0].TotalLines)
	assert.Equal(t, 0.0, weeks[0].Rate)
}

func TestChurnWeeklyBuckets(t *testing.T) {
	f := newChurnFixture(t)
	f.addMergedPR(t, weekAnchor, churnFile("a.go", 100, 0))
	f.addMergedPR(t, weekAnchor.Add(8*24*time.Hour), churnFile("b.go", 60, 0))
	// Reworks a.go within the window; the churn lands in the first
	// PR's week even though the rework happened in the second.
	f.addMergedPR(t, weekAnchor.Add(9*24*time.Hour), churnFile("a.go", 10, 10))

	weeks := f.compute(t)
	require.Len(t, weeks, 2)

	assert.Equal(t, FormatDate(weekAnchor), weeks[0].Week)
	assert.Equal(t, 100, weeks[0].TotalLines)
	assert.Equal(t, 20, weeks[0].ChurnedLines)
	assert.Equal(t, 20.0, weeks[0].Rate)

	assert.Equal(t, 70, weeks[1].TotalLines)
	assert.Equal(t, 0, weeks[1].ChurnedLines)
}

func TestChurnHonorsConfiguredWindow(t *testing.T) {
	f := newChurnFixture(t)
	require.NoError(t, f.settings.SetChurnWindowDays(5))

	f.addMergedPR(t, weekAnchor, churnFile("core.go", 100, 0))
	f.addMergedPR(t, weekAnchor.Add(6*24*time.Hour), churnFile("core.go", 30, 20))

	weeks := f.compute(t)
	require.NotEmpty(t, weeks)
	assert.Equal(t, 0, weeks[0].ChurnedLines)
}
