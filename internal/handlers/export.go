package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

type ExportHandler struct {
	prRepo   *repositories.PullRequestRepository
	repoRepo *repositories.RepositoryRepository
	userRepo *repositories.UserRepository
}

func NewExportHandler(
	prRepo *repositories.PullRequestRepository,
	repoRepo *repositories.RepositoryRepository,
	userRepo *repositories.UserRepository,
) *ExportHandler {
	return &ExportHandler{
		prRepo:   prRepo,
		repoRepo: repoRepo,
		userRepo: userRepo,
	}
}

// ExportPullRequests streams every stored pull request as an XLSX sheet
func (h *ExportHandler) ExportPullRequests(c *gin.Context) {
	prs, err := h.prRepo.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load pull requests: " + err.Error()})
		return
	}

	repoNames, err := h.repoNames()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load repositories: " + err.Error()})
		return
	}

	authorLogins, err := h.authorLogins()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load users: " + err.Error()})
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Pull Requests"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{
		"Repository", "Number", "Title", "Author", "State", "Draft",
		"Created", "Merged", "Additions", "Deletions",
		"Filtered Additions", "Filtered Deletions", "URL",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for row, pr := range prs {
		values := []interface{}{
			repoNames[pr.RepositoryID],
			pr.Number,
			pr.Title,
			authorLogin(authorLogins, pr.AuthorID),
			pr.State,
			pr.IsDraft,
			formatTimestamp(&pr.CreatedAt),
			formatTimestamp(pr.MergedAt),
			pr.Additions,
			pr.Deletions,
			pr.FilteredAdditions,
			pr.FilteredDeletions,
			derefString(pr.URL),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	filename := fmt.Sprintf("pull_requests_%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write workbook: " + err.Error()})
	}
}

func (h *ExportHandler) repoNames() (map[string]string, error) {
	repos, err := h.repoRepo.GetAll()
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(repos))
	for _, repo := range repos {
		names[repo.ID] = repo.FullName
	}
	return names, nil
}

func (h *ExportHandler) authorLogins() (map[string]string, error) {
	users, err := h.userRepo.GetAll()
	if err != nil {
		return nil, err
	}

	logins := make(map[string]string, len(users))
	for _, user := range users {
		logins[user.ID] = user.GithubLogin
	}
	return logins, nil
}

func authorLogin(logins map[string]string, authorID *string) string {
	if authorID == nil {
		return ""
	}
	return logins[*authorID]
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
