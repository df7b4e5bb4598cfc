package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alimgiray/prpulse/pkg/logger"
	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	defaultGraphQLURL = "https://api.github.com/graphql"
	prPageSize        = 50
	filePageSize      = 100
)

// pullRequestsQuery fetches one page of pull requests ordered by most
// recently updated first, with the first ready-for-review event and up
// to the first 50 reviews embedded.
const pullRequestsQuery = `
query($owner: String!, $name: String!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    pullRequests(first: 50, after: $cursor, orderBy: {field: UPDATED_AT, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        id
        databaseId
        number
        title
        state
        isDraft
        createdAt
        updatedAt
        mergedAt
        closedAt
        additions
        deletions
        changedFiles
        url
        author { login ... on User { databaseId avatarUrl } }
        timelineItems(itemTypes: [READY_FOR_REVIEW_EVENT], first: 1) {
          nodes { ... on ReadyForReviewEvent { createdAt } }
        }
        reviews(first: 50) {
          nodes {
            id
            databaseId
            state
            submittedAt
            author { login ... on User { databaseId avatarUrl } }
          }
        }
      }
    }
  }
  rateLimit { cost remaining resetAt }
}`

// ActorNode is a PR author or reviewer as returned by the API
type ActorNode struct {
	Login      string  `json:"login"`
	DatabaseID *int64  `json:"databaseId"`
	AvatarURL  *string `json:"avatarUrl"`
}

// ReviewNode is one review embedded in a pull request node
type ReviewNode struct {
	ID          string     `json:"id"`
	DatabaseID  *int64     `json:"databaseId"`
	State       string     `json:"state"`
	SubmittedAt *string    `json:"submittedAt"`
	Author      *ActorNode `json:"author"`
}

// TimelineEventNode is a ready-for-review timeline event
type TimelineEventNode struct {
	CreatedAt string `json:"createdAt"`
}

// PullRequestNode is one pull request as returned by the API
type PullRequestNode struct {
	ID           string     `json:"id"`
	DatabaseID   int64      `json:"databaseId"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	State        string     `json:"state"`
	IsDraft      bool       `json:"isDraft"`
	CreatedAt    string     `json:"createdAt"`
	UpdatedAt    string     `json:"updatedAt"`
	MergedAt     *string    `json:"mergedAt"`
	ClosedAt     *string    `json:"closedAt"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changedFiles"`
	URL          string     `json:"url"`
	Author       *ActorNode `json:"author"`

	TimelineItems struct {
		Nodes []TimelineEventNode `json:"nodes"`
	} `json:"timelineItems"`

	Reviews struct {
		Nodes []ReviewNode `json:"nodes"`
	} `json:"reviews"`
}

// PageInfo describes cursor pagination state
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// RateLimit is the API's rate-limit descriptor for one query
type RateLimit struct {
	Cost      int    `json:"cost"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

// FileDiff is one file of a pull request's diff
type FileDiff struct {
	Filename  string
	Status    string
	Additions int
	Deletions int
	Patch     *string
}

type graphQLResponse struct {
	Data struct {
		Repository *struct {
			PullRequests *struct {
				PageInfo PageInfo          `json:"pageInfo"`
				Nodes    []PullRequestNode `json:"nodes"`
			} `json:"pullRequests"`
		} `json:"repository"`
		RateLimit RateLimit `json:"rateLimit"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GitHubService issues paginated, authenticated requests against the
// GitHub GraphQL and REST APIs with transient-failure retry.
type GitHubService struct {
	httpClient *http.Client
	rest       *github.Client
	graphQLURL string
	log        *logrus.Entry
	sleep      func(time.Duration)
}

// NewGitHubService creates a client authenticated with a personal access token
func NewGitHubService(token string) *GitHubService {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)

	return &GitHubService{
		httpClient: httpClient,
		rest:       github.NewClient(httpClient),
		graphQLURL: defaultGraphQLURL,
		log:        logger.WithField("component", "github"),
		sleep:      time.Sleep,
	}
}

// FetchPullRequestsPage fetches one page of pull requests ordered by
// update time descending. An empty repository payload is treated as a
// 502 so the retry policy applies.
func (s *GitHubService) FetchPullRequestsPage(ctx context.Context, owner, name string, cursor *string) ([]PullRequestNode, *PageInfo, *RateLimit, error) {
	var prs []PullRequestNode
	var pageInfo *PageInfo
	var rateLimit *RateLimit

	label := fmt.Sprintf("%s/%s pull requests", owner, name)
	err := withRetry(ctx, s.log, label, s.sleep, func() error {
		resp, err := s.postGraphQL(ctx, pullRequestsQuery, map[string]interface{}{
			"owner":  owner,
			"name":   name,
			"cursor": cursor,
		})
		if err != nil {
			return err
		}

		if resp.Data.Repository == nil || resp.Data.Repository.PullRequests == nil {
			return &apiError{StatusCode: 502, Message: fmt.Sprintf("empty response for %s/%s", owner, name)}
		}

		prs = resp.Data.Repository.PullRequests.Nodes
		pageInfo = &resp.Data.Repository.PullRequests.PageInfo
		rateLimit = &resp.Data.RateLimit
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return prs, pageInfo, rateLimit, nil
}

// FetchPRFiles fetches the full file-diff list for a pull request,
// paging until a short page is returned
func (s *GitHubService) FetchPRFiles(ctx context.Context, owner, name string, number int) ([]*FileDiff, error) {
	var files []*FileDiff
	label := fmt.Sprintf("%s/%s#%d files", owner, name, number)

	page := 1
	for {
		var batch []*github.CommitFile
		err := withRetry(ctx, s.log, label, s.sleep, func() error {
			var err error
			batch, _, err = s.rest.PullRequests.ListFiles(ctx, owner, name, number, &github.ListOptions{
				PerPage: filePageSize,
				Page:    page,
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, f := range batch {
			files = append(files, &FileDiff{
				Filename:  f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.Patch,
			})
		}

		if len(batch) < filePageSize {
			break
		}
		page++
	}

	return files, nil
}

// TestConnection verifies the token and returns the authenticated login
func (s *GitHubService) TestConnection(ctx context.Context) (string, error) {
	user, _, err := s.rest.Users.Get(ctx, "")
	if err != nil {
		return "", err
	}
	return user.GetLogin(), nil
}

func (s *GitHubService) postGraphQL(ctx context.Context, query string, variables map[string]interface{}) (*graphQLResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.graphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &apiError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	var parsed graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", parsed.Errors[0].Message)
	}

	return &parsed, nil
}
