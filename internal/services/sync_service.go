package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/pkg/logger"
	"github.com/sirupsen/logrus"
)

const (
	// Hard ingestion horizon: data older than one year is never pulled.
	ingestionHorizon = 365 * 24 * time.Hour

	// In incremental mode, hitting this many consecutive already-merged
	// PRs in the update-time-ordered feed stops the scan early. Merged
	// PRs are immutable for the engine, so a run of them at the head of
	// the feed means the rest of history has already been seen.
	consecutiveMergedLimit = 10
)

// SyncService orchestrates repository ingestion: paginate, filter by
// cutoff, upsert entities, fetch file diffs, recompute filtered stats
// and record job status.
type SyncService struct {
	db         *sql.DB
	repoRepo   *repositories.RepositoryRepository
	prRepo     *repositories.PullRequestRepository
	jobRepo    *repositories.SyncJobRepository
	settings   *SettingsService
	lock       *SyncLockService
	newClient  func(token string) *GitHubService
	now        func() time.Time
}

func NewSyncService(
	db *sql.DB,
	repoRepo *repositories.RepositoryRepository,
	prRepo *repositories.PullRequestRepository,
	jobRepo *repositories.SyncJobRepository,
	settings *SettingsService,
	lock *SyncLockService,
) *SyncService {
	return &SyncService{
		db:        db,
		repoRepo:  repoRepo,
		prRepo:    prRepo,
		jobRepo:   jobRepo,
		settings:  settings,
		lock:      lock,
		newClient: NewGitHubService,
		now:       time.Now,
	}
}

// Run executes one sync job to completion, finalizing its status. The
// job row is the durable signal of the outcome; the error is also
// returned for the caller's logs.
func (s *SyncService) Run(ctx context.Context, job *models.SyncJob) error {
	scope := ScopeAll
	if job.RepositoryID != nil {
		scope = *job.RepositoryID
	}

	if err := s.lock.Acquire(scope); err != nil {
		job.SetError(err.Error())
		job.MarkFailed()
		if uerr := s.jobRepo.Update(job); uerr != nil {
			logger.WithError(uerr).Error("Failed to update sync job")
		}
		return err
	}
	defer s.lock.Release()

	job.MarkStarted()
	if err := s.jobRepo.Update(job); err != nil {
		return err
	}

	err := s.run(ctx, job)
	if err != nil {
		job.SetError(err.Error())
		job.MarkFailed()
		if uerr := s.jobRepo.Update(job); uerr != nil {
			logger.WithError(uerr).Error("Failed to mark sync job as failed")
		}
		return err
	}

	job.MarkCompleted()
	return s.jobRepo.Update(job)
}

func (s *SyncService) run(ctx context.Context, job *models.SyncJob) error {
	if job.RepositoryID != nil {
		repo, err := s.repoRepo.GetByID(*job.RepositoryID)
		if err != nil {
			return err
		}
		if repo == nil {
			return fmt.Errorf("repository %s not found", *job.RepositoryID)
		}
		return s.syncRepository(ctx, job, repo)
	}

	repos, err := s.repoRepo.GetAll()
	if err != nil {
		return err
	}

	logger.Infof("Starting sync for %d repositories", len(repos))
	for _, repo := range repos {
		if err := s.syncRepository(ctx, job, repo); err != nil {
			return err
		}
	}

	return nil
}

// syncRepository runs the paging loop for one repository. Pages are
// ordered most-recently-updated first, so both the cutoff and the
// consecutive-merged early stop bound the scan.
func (s *SyncService) syncRepository(ctx context.Context, job *models.SyncJob, repo *models.Repository) error {
	log := logger.WithFields(logrus.Fields{
		"repo":     repo.FullName,
		"backfill": job.Backfill,
	})

	token, err := s.settings.GithubToken()
	if err != nil {
		return err
	}

	globs, err := s.settings.ExcludeGlobs()
	if err != nil {
		return err
	}

	client := s.newClient(token)
	cutoff := s.now().Add(-ingestionHorizon)

	mode := "incremental"
	if repo.LastSyncedAt == nil {
		mode = "initial"
	}
	log.Infof("Starting sync (%s, cutoff=%s)", mode, FormatDate(cutoff))

	var cursor *string
	var lastCursor *string
	consecutiveMerged := 0
	skipped := 0
	newCount := 0
	updatedCount := 0
	pageNum := 0
	done := false

	for !done {
		pageNum++
		prs, pageInfo, rateLimit, err := client.FetchPullRequestsPage(ctx, repo.Owner, repo.Name, cursor)
		if err != nil {
			return err
		}

		log.Infof("Page %d: %d PRs, hasMore=%v", pageNum, len(prs), pageInfo.HasNextPage)
		log.Infof("Rate limit: cost=%d remaining=%d resets at %s", rateLimit.Cost, rateLimit.Remaining, rateLimit.ResetAt)

		for i := range prs {
			pr := &prs[i]

			updatedAt := ParseTime(&pr.UpdatedAt)
			if updatedAt != nil && updatedAt.Before(cutoff) {
				// Results are update-time descending: everything past
				// this point is older still.
				log.Infof("Reached cutoff at PR #%d, stopping", pr.Number)
				done = true
				break
			}

			createdAt := ParseTime(&pr.CreatedAt)
			if job.Backfill && createdAt != nil && createdAt.Before(cutoff) {
				skipped++
				continue
			}

			existing, err := s.prRepo.GetByGithubID(pr.DatabaseID)
			if err != nil {
				return err
			}

			if existing != nil && existing.State == models.PRStateMerged {
				consecutiveMerged++
				skipped++
				if !job.Backfill && consecutiveMerged >= consecutiveMergedLimit {
					log.Infof("Hit %d consecutive already-merged PRs, stopping early", consecutiveMerged)
					done = true
					break
				}
				continue
			}
			consecutiveMerged = 0

			isNew, err := s.processPullRequest(ctx, client, repo, pr, existing, globs, log)
			if err != nil {
				return err
			}

			job.PRsProcessed++
			if isNew {
				newCount++
			} else {
				updatedCount++
			}
		}

		if err := s.jobRepo.UpdatePRsProcessed(job.ID, job.PRsProcessed); err != nil {
			return err
		}

		if done || !pageInfo.HasNextPage {
			break
		}
		cursor = pageInfo.EndCursor
		lastCursor = cursor
	}

	now := s.now()
	if err := s.repoRepo.UpdateLastSynced(repo.ID, now, lastCursor); err != nil {
		return err
	}

	log.Infof("Sync complete: %d new, %d updated, %d skipped", newCount, updatedCount, skipped)
	return nil
}

// processPullRequest ingests one PR. All row mutations for the PR
// (author upsert, PR upsert, review inserts, file replacement and
// filtered-stats write-back) happen in a single transaction, so a
// crash cannot leave files deleted but not reinserted.
func (s *SyncService) processPullRequest(
	ctx context.Context,
	client *GitHubService,
	repo *models.Repository,
	pr *PullRequestNode,
	existing *models.PullRequest,
	globs []string,
	log *logrus.Entry,
) (bool, error) {
	isNew := existing == nil

	// A merged PR's file set is fetched exactly once: when the PR is
	// first seen, or at the sighting where mergedAt appears.
	needsFileSync := isNew || (pr.State == models.PRStateMerged && existing.MergedAt == nil)

	var diffs []*FileDiff
	if needsFileSync {
		var err error
		diffs, err = client.FetchPRFiles(ctx, repo.Owner, repo.Name, pr.Number)
		if err != nil {
			return false, err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	userRepo := repositories.NewUserRepository(tx)
	prRepo := repositories.NewPullRequestRepository(tx)
	reviewRepo := repositories.NewPRReviewRepository(tx)
	fileRepo := repositories.NewPRFileRepository(tx)

	authorID, err := s.upsertUser(userRepo, pr.Author)
	if err != nil {
		return false, err
	}

	row := TransformPullRequest(pr)
	row.RepositoryID = repo.ID
	row.AuthorID = authorID

	if existing != nil {
		row.ID = existing.ID
		if err := prRepo.Update(row); err != nil {
			return false, err
		}
	} else {
		if err := prRepo.Create(row); err != nil {
			return false, err
		}
	}

	newReviews := 0
	for i := range pr.Reviews.Nodes {
		review := &pr.Reviews.Nodes[i]

		if review.DatabaseID != nil {
			exists, err := reviewRepo.ExistsByGithubID(*review.DatabaseID)
			if err != nil {
				return false, err
			}
			if exists {
				continue
			}
		}

		reviewerID, err := s.upsertUser(userRepo, review.Author)
		if err != nil {
			return false, err
		}

		reviewRow := TransformReview(review)
		reviewRow.PullRequestID = row.ID
		reviewRow.ReviewerID = reviewerID
		if err := reviewRepo.Create(reviewRow); err != nil {
			return false, err
		}
		newReviews++
	}

	if needsFileSync {
		if err := fileRepo.DeleteByPullRequestID(row.ID); err != nil {
			return false, err
		}

		files := make([]*models.PRFile, 0, len(diffs))
		for _, diff := range diffs {
			file := models.NewPRFile(row.ID, diff.Filename)
			status := diff.Status
			file.Status = &status
			file.Additions = diff.Additions
			file.Deletions = diff.Deletions
			file.IsExcluded = IsExcluded(diff.Filename, globs)
			file.Patch = diff.Patch

			if err := fileRepo.Create(file); err != nil {
				return false, err
			}
			files = append(files, file)
		}

		additions, deletions := ComputeFilteredStats(files)
		if err := prRepo.UpdateFilteredStats(row.ID, additions, deletions); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	log.WithFields(logrus.Fields{
		"pr":          pr.Number,
		"state":       pr.State,
		"new":         isNew,
		"new_reviews": newReviews,
		"files":       len(diffs),
	}).Debug("Processed pull request")

	return isNew, nil
}

// upsertUser resolves or creates the user for an actor, refreshing the
// avatar on later sightings. Returns nil for deleted accounts.
func (s *SyncService) upsertUser(userRepo *repositories.UserRepository, actor *ActorNode) (*string, error) {
	if actor == nil {
		return nil, nil
	}

	existing, err := userRepo.GetByLogin(actor.Login)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if actor.AvatarURL != nil && (existing.AvatarURL == nil || *existing.AvatarURL != *actor.AvatarURL) {
			if err := userRepo.UpdateAvatar(existing.ID, *actor.AvatarURL); err != nil {
				return nil, err
			}
		}
		return &existing.ID, nil
	}

	user := models.NewUser(actor.Login)
	user.GithubID = actor.DatabaseID
	user.AvatarURL = actor.AvatarURL
	if err := userRepo.Create(user); err != nil {
		return nil, err
	}

	return &user.ID, nil
}
