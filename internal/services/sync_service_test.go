package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow anchors every sync test; the cutoff lands exactly one year earlier
var fixedNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// fakeGitHub serves queued GraphQL pages in order and a canned file
// list for every PR
type fakeGitHub struct {
	pages        []string
	graphQLCalls int
	fileCalls    map[int]int
	server       *httptest.Server
}

func newFakeGitHub(pages ...string) *fakeGitHub {
	f := &fakeGitHub{pages: pages, fileCalls: make(map[int]int)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/graphql" {
			idx := f.graphQLCalls
			f.graphQLCalls++
			if idx >= len(f.pages) {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, f.pages[idx])
			return
		}

		// REST file list: /repos/{owner}/{repo}/pulls/{number}/files
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) == 6 && parts[5] == "files" {
			number := 0
			fmt.Sscanf(parts[4], "%d", &number)
			f.fileCalls[number]++
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `[
				{"filename": "src_%d.go", "status": "modified", "additions": 10, "deletions": 2},
				{"filename": "go.sum", "status": "modified", "additions": 100, "deletions": 50}
			]`, number)
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	return f
}

func (f *fakeGitHub) Close() { f.server.Close() }

type syncFixture struct {
	db          *sql.DB
	repoRepo    *repositories.RepositoryRepository
	prRepo      *repositories.PullRequestRepository
	fileRepo    *repositories.PRFileRepository
	reviewRepo  *repositories.PRReviewRepository
	jobRepo     *repositories.SyncJobRepository
	settings    *SettingsService
	lock        *SyncLockService
	service     *SyncService
	repo        *models.Repository
}

func newSyncFixture(t *testing.T, gh *fakeGitHub) *syncFixture {
	t.Helper()
	db := newTestDB(t)

	f := &syncFixture{
		db:         db,
		repoRepo:   repositories.NewRepositoryRepository(db),
		prRepo:     repositories.NewPullRequestRepository(db),
		fileRepo:   repositories.NewPRFileRepository(db),
		reviewRepo: repositories.NewPRReviewRepository(db),
		jobRepo:    repositories.NewSyncJobRepository(db),
		settings:   NewSettingsService(repositories.NewSettingRepository(db)),
		lock:       NewSyncLockService(),
	}
	require.NoError(t, f.settings.SetGithubToken("ghp_test"))

	f.service = NewSyncService(db, f.repoRepo, f.prRepo, f.jobRepo, f.settings, f.lock)
	f.service.now = func() time.Time { return fixedNow }
	var sleeps []time.Duration
	f.service.newClient = func(token string) *GitHubService {
		return newTestGitHubService(t, gh.server.URL, &sleeps)
	}

	f.repo = models.NewRepository("acme", "widgets")
	require.NoError(t, f.repoRepo.Create(f.repo))
	return f
}

func (f *syncFixture) runJob(t *testing.T, backfill bool) *models.SyncJob {
	t.Helper()
	job := models.NewSyncJob(models.JobTypeSync, &f.repo.ID)
	job.Backfill = backfill
	require.NoError(t, f.jobRepo.Create(job))
	require.NoError(t, f.service.Run(context.Background(), job))
	return job
}

// syncPRJSON builds one PR node. Merged PRs carry mergedAt equal to
// updatedAt and a single review.
func syncPRJSON(number int, state, createdAt, updatedAt string) string {
	mergedAt := "null"
	reviews := ""
	if state == models.PRStateMerged {
		mergedAt = fmt.Sprintf("%q", updatedAt)
		reviews = fmt.Sprintf(`{
			"id": "R_%d",
			"databaseId": %d,
			"state": "APPROVED",
			"submittedAt": %q,
			"author": {"login": "bob", "databaseId": 2, "avatarUrl": null}
		}`, number, 100000+number, updatedAt)
	}

	return fmt.Sprintf(`{
		"id": "PR_%d",
		"databaseId": %d,
		"number": %d,
		"title": "PR %d",
		"state": %q,
		"isDraft": false,
		"createdAt": %q,
		"updatedAt": %q,
		"mergedAt": %s,
		"closedAt": null,
		"additions": 110,
		"deletions": 52,
		"changedFiles": 2,
		"url": "https://example.com/pr/%d",
		"author": {"login": "alice", "databaseId": 1, "avatarUrl": "https://example.com/a.png"},
		"timelineItems": {"nodes": []},
		"reviews": {"nodes": [%s]}
	}`, number, number, number, number, state, createdAt, updatedAt, mergedAt, number, reviews)
}

func TestSyncStoresPullRequestsFilesAndReviews(t *testing.T) {
	gh := newFakeGitHub(graphQLPage(strings.Join([]string{
		syncPRJSON(2, models.PRStateMerged, "2026-07-01T00:00:00Z", "2026-07-10T00:00:00Z"),
		syncPRJSON(1, models.PRStateOpen, "2026-06-01T00:00:00Z", "2026-07-05T00:00:00Z"),
	}, ","), false, ""))
	defer gh.Close()

	f := newSyncFixture(t, gh)
	job := f.runJob(t, false)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.PRsProcessed)

	prs, err := f.prRepo.GetByRepositoryID(f.repo.ID)
	require.NoError(t, err)
	require.Len(t, prs, 2)

	merged, err := f.prRepo.GetByGithubID(2)
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, models.PRStateMerged, merged.State)
	require.NotNil(t, merged.MergedAt)
	require.NotNil(t, merged.AuthorID)

	// Both files stored, filtered stats cover all of them with no globs set.
	files, err := f.fileRepo.GetByPullRequestID(merged.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, 110, merged.FilteredAdditions)
	assert.Equal(t, 52, merged.FilteredDeletions)

	reviews, err := f.reviewRepo.GetByPullRequestID(merged.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.NotNil(t, reviews[0].ReviewerID)

	// Author and reviewer both became users.
	users, err := repositories.NewUserRepository(f.db).GetAll()
	require.NoError(t, err)
	assert.Len(t, users, 2)

	// Last-synced stamp written.
	repo, err := f.repoRepo.GetByID(f.repo.ID)
	require.NoError(t, err)
	require.NotNil(t, repo.LastSyncedAt)
}

func TestSyncIsIdempotent(t *testing.T) {
	page := graphQLPage(strings.Join([]string{
		syncPRJSON(2, models.PRStateMerged, "2026-07-01T00:00:00Z", "2026-07-10T00:00:00Z"),
		syncPRJSON(1, models.PRStateOpen, "2026-06-01T00:00:00Z", "2026-07-05T00:00:00Z"),
	}, ","), false, "")
	gh := newFakeGitHub(page, page)
	defer gh.Close()

	f := newSyncFixture(t, gh)
	f.runJob(t, false)
	f.runJob(t, false)

	prs, err := f.prRepo.GetAll()
	require.NoError(t, err)
	assert.Len(t, prs, 2)

	merged, err := f.prRepo.GetByGithubID(2)
	require.NoError(t, err)
	reviews, err := f.reviewRepo.GetByPullRequestID(merged.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)

	files, err := f.fileRepo.GetByPullRequestID(merged.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	// The merged PR is immutable: its files were fetched on first
	// sighting only.
	assert.Equal(t, 1, gh.fileCalls[2])
}

func TestSyncStopsAtCutoffMidPage(t *testing.T) {
	gh := newFakeGitHub(graphQLPage(strings.Join([]string{
		syncPRJSON(3, models.PRStateOpen, "2026-07-01T00:00:00Z", "2026-07-10T00:00:00Z"),
		syncPRJSON(2, models.PRStateOpen, "2025-06-01T00:00:00Z", "2025-07-01T00:00:00Z"), // before cutoff
		syncPRJSON(1, models.PRStateOpen, "2025-05-01T00:00:00Z", "2025-06-01T00:00:00Z"),
	}, ","), true, "next"))
	defer gh.Close()

	f := newSyncFixture(t, gh)
	job := f.runJob(t, false)

	// Only the fresh PR is stored; the scan stopped at the first stale
	// row and never followed the next page.
	assert.Equal(t, 1, job.PRsProcessed)
	assert.Equal(t, 1, gh.graphQLCalls)

	prs, err := f.prRepo.GetAll()
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, int64(3), prs[0].GithubID)
}

func TestBackfillSkipsOldCreationsWithoutStopping(t *testing.T) {
	// Both PRs were updated recently; the first was created before the
	// cutoff. Backfill skips it but keeps scanning.
	gh := newFakeGitHub(graphQLPage(strings.Join([]string{
		syncPRJSON(2, models.PRStateOpen, "2024-01-01T00:00:00Z", "2026-07-10T00:00:00Z"),
		syncPRJSON(1, models.PRStateOpen, "2026-06-01T00:00:00Z", "2026-07-05T00:00:00Z"),
	}, ","), false, ""))
	defer gh.Close()

	f := newSyncFixture(t, gh)
	job := f.runJob(t, true)

	assert.Equal(t, 1, job.PRsProcessed)

	prs, err := f.prRepo.GetAll()
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, int64(1), prs[0].GithubID)
}

func TestIncrementalEarlyStopOnConsecutiveMerged(t *testing.T) {
	var nodes []string
	for i := 20; i > 10; i-- {
		nodes = append(nodes, syncPRJSON(i, models.PRStateMerged, "2026-06-01T00:00:00Z", fmt.Sprintf("2026-07-%02dT00:00:00Z", i)))
	}
	nodes = append(nodes, syncPRJSON(1, models.PRStateOpen, "2026-06-01T00:00:00Z", "2026-07-01T00:00:00Z"))
	firstPage := graphQLPage(strings.Join(nodes, ","), false, "")
	secondPage := graphQLPage(strings.Join(nodes, ","), true, "next")

	gh := newFakeGitHub(firstPage, secondPage, graphQLPage("", false, ""))
	defer gh.Close()

	f := newSyncFixture(t, gh)

	// First sync ingests everything.
	first := f.runJob(t, false)
	assert.Equal(t, 11, first.PRsProcessed)

	// Second incremental sync sees 10 consecutive already-merged PRs
	// and stops before reaching the open one or the next page.
	second := f.runJob(t, false)
	assert.Equal(t, 0, second.PRsProcessed)
	assert.Equal(t, 2, gh.graphQLCalls)
}

func TestBackfillIgnoresEarlyStopHeuristic(t *testing.T) {
	var nodes []string
	for i := 20; i > 10; i-- {
		nodes = append(nodes, syncPRJSON(i, models.PRStateMerged, "2026-06-01T00:00:00Z", fmt.Sprintf("2026-07-%02dT00:00:00Z", i)))
	}
	nodes = append(nodes, syncPRJSON(1, models.PRStateOpen, "2026-06-01T00:00:00Z", "2026-07-01T00:00:00Z"))
	page := graphQLPage(strings.Join(nodes, ","), false, "")

	gh := newFakeGitHub(page, page)
	defer gh.Close()

	f := newSyncFixture(t, gh)
	f.runJob(t, false)

	// Backfill keeps scanning past the merged run and reprocesses the
	// open PR.
	second := f.runJob(t, true)
	assert.Equal(t, 1, second.PRsProcessed)
}

func TestFileSyncOnMergeTransition(t *testing.T) {
	openPage := graphQLPage(syncPRJSON(5, models.PRStateOpen, "2026-07-01T00:00:00Z", "2026-07-02T00:00:00Z"), false, "")
	mergedPage := graphQLPage(syncPRJSON(5, models.PRStateMerged, "2026-07-01T00:00:00Z", "2026-07-03T00:00:00Z"), false, "")

	gh := newFakeGitHub(openPage, mergedPage, mergedPage)
	defer gh.Close()

	f := newSyncFixture(t, gh)

	f.runJob(t, false)
	assert.Equal(t, 1, gh.fileCalls[5])

	// The merge transition triggers exactly one re-fetch of the file set.
	f.runJob(t, false)
	assert.Equal(t, 2, gh.fileCalls[5])

	pr, err := f.prRepo.GetByGithubID(5)
	require.NoError(t, err)
	assert.Equal(t, models.PRStateMerged, pr.State)
	require.NotNil(t, pr.MergedAt)

	files, err := f.fileRepo.GetByPullRequestID(pr.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	// Already-merged PRs are skipped entirely on the third pass.
	f.runJob(t, false)
	assert.Equal(t, 2, gh.fileCalls[5])
}

func TestSyncAppliesExclusionGlobsToNewFiles(t *testing.T) {
	gh := newFakeGitHub(graphQLPage(syncPRJSON(9, models.PRStateMerged, "2026-07-01T00:00:00Z", "2026-07-02T00:00:00Z"), false, ""))
	defer gh.Close()

	f := newSyncFixture(t, gh)
	require.NoError(t, f.settings.SetExcludeGlobs([]string{"go.sum"}))

	f.runJob(t, false)

	pr, err := f.prRepo.GetByGithubID(9)
	require.NoError(t, err)
	assert.Equal(t, 10, pr.FilteredAdditions)
	assert.Equal(t, 2, pr.FilteredDeletions)
}

func TestThreePagePagination(t *testing.T) {
	// 100 + 100 + 40 PRs, newest first; the last 5 sit past the cutoff.
	newest := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	stale := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	var pages []string
	number := 240
	for p := 0; p < 3; p++ {
		count := 100
		if p == 2 {
			count = 40
		}
		var nodes []string
		for i := 0; i < count; i++ {
			updated := newest.Add(-time.Duration(240-number) * time.Minute)
			if number <= 5 {
				updated = stale
			}
			nodes = append(nodes, syncPRJSON(number, models.PRStateOpen, "2026-06-01T00:00:00Z", updated.Format(time.RFC3339)))
			number--
		}
		pages = append(pages, graphQLPage(strings.Join(nodes, ","), p < 2, fmt.Sprintf("cursor-%d", p)))
	}

	gh := newFakeGitHub(pages...)
	defer gh.Close()

	f := newSyncFixture(t, gh)
	job := f.runJob(t, false)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 235, job.PRsProcessed)
	assert.Equal(t, 3, gh.graphQLCalls)

	prs, err := f.prRepo.GetAll()
	require.NoError(t, err)
	assert.Len(t, prs, 235)
}

func TestSyncFailsWithoutToken(t *testing.T) {
	gh := newFakeGitHub()
	defer gh.Close()

	f := newSyncFixture(t, gh)
	_, err := f.db.Exec(`DELETE FROM settings`)
	require.NoError(t, err)

	job := models.NewSyncJob(models.JobTypeSync, &f.repo.ID)
	require.NoError(t, f.jobRepo.Create(job))

	err = f.service.Run(context.Background(), job)
	assert.ErrorIs(t, err, ErrNoGithubToken)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)

	// The lock was released on failure.
	assert.Equal(t, "", f.lock.ActiveScope())
}

func TestSyncRejectedWhileLockHeld(t *testing.T) {
	gh := newFakeGitHub()
	defer gh.Close()

	f := newSyncFixture(t, gh)
	require.NoError(t, f.lock.Acquire(ScopeAll))

	job := models.NewSyncJob(models.JobTypeSync, &f.repo.ID)
	require.NoError(t, f.jobRepo.Create(job))

	err := f.service.Run(context.Background(), job)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}
