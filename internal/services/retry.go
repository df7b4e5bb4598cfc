package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
)

const maxRetries = 4

var retryableStatuses = map[int]bool{
	429: true,
	502: true,
	503: true,
	504: true,
}

// apiError carries the HTTP status of a failed API call so the retry
// loop can decide whether the failure is transient
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error: %d %s", e.StatusCode, e.Message)
}

// statusFromError extracts an HTTP status from the error types our
// clients produce. Returns 0 when no status is attached.
func statusFromError(err error) int {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return 429
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return 429
	}

	return 0
}

// withRetry runs fn, retrying transient failures (429/502/503/504) up
// to maxRetries additional attempts with exponential backoff starting
// at 1s, doubling, capped at 30s. Any other error, or retry
// exhaustion, propagates immediately.
func withRetry(ctx context.Context, log *logrus.Entry, label string, sleep func(time.Duration), fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		status := statusFromError(err)
		if !retryableStatuses[status] || attempt == maxRetries {
			return err
		}

		delay := time.Second << attempt
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		log.WithFields(logrus.Fields{
			"label":   label,
			"status":  status,
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).Warn("Transient API error, retrying")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		sleep(delay)
	}
}
