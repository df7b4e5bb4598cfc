package services

import (
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/pkg/logger"
	"github.com/bmatcuk/doublestar/v4"
)

// IsExcluded reports whether a filename matches any of the configured
// glob patterns. Shell-glob semantics: *, ** and brace groups.
func IsExcluded(filename string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, filename)
		if err != nil {
			logger.Warnf("Invalid exclusion pattern %q, skipping", pattern)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ExclusionService reapplies the exclusion configuration to stored
// files and keeps filtered line counts consistent with it.
type ExclusionService struct {
	prRepo   *repositories.PullRequestRepository
	fileRepo *repositories.PRFileRepository
	settings *SettingsService
}

func NewExclusionService(
	prRepo *repositories.PullRequestRepository,
	fileRepo *repositories.PRFileRepository,
	settings *SettingsService,
) *ExclusionService {
	return &ExclusionService{
		prRepo:   prRepo,
		fileRepo: fileRepo,
		settings: settings,
	}
}

// RecomputeAll retags every stored file against the current glob set
// (clearing all flags when the set is empty), then recomputes every
// pull request's filtered line counts from its files.
func (s *ExclusionService) RecomputeAll() error {
	globs, err := s.settings.ExcludeGlobs()
	if err != nil {
		return err
	}

	if len(globs) == 0 {
		if err := s.fileRepo.ClearAllExcluded(); err != nil {
			return err
		}
	} else {
		files, err := s.fileRepo.GetAll()
		if err != nil {
			return err
		}

		for _, file := range files {
			excluded := IsExcluded(file.Filename, globs)
			if excluded != file.IsExcluded {
				if err := s.fileRepo.UpdateExcluded(file.ID, excluded); err != nil {
					return err
				}
			}
		}
	}

	prIDs, err := s.prRepo.GetAllIDs()
	if err != nil {
		return err
	}

	for _, prID := range prIDs {
		if err := s.RecomputeForPullRequest(prID); err != nil {
			return err
		}
	}

	logger.WithField("pull_requests", len(prIDs)).Info("Filtered stats recomputed")
	return nil
}

// RecomputeForPullRequest rewrites one PR's filtered counts from its
// current file rows
func (s *ExclusionService) RecomputeForPullRequest(prID string) error {
	files, err := s.fileRepo.GetByPullRequestID(prID)
	if err != nil {
		return err
	}

	additions, deletions := ComputeFilteredStats(files)
	return s.prRepo.UpdateFilteredStats(prID, additions, deletions)
}
