package repositories

import (
	"github.com/alimgiray/prpulse/internal/models"
)

type AIUsageRepository struct {
	db DBTX
}

func NewAIUsageRepository(db DBTX) *AIUsageRepository {
	return &AIUsageRepository{db: db}
}

// Upsert inserts or replaces the record for (email, date)
func (r *AIUsageRepository) Upsert(usage *models.AIUsage) error {
	query := `
		INSERT INTO ai_usage (
			id, email, date, num_sessions, lines_added, lines_removed, commits, pull_requests,
			edit_accepted, edit_rejected, write_accepted, write_rejected,
			multi_edit_accepted, multi_edit_rejected
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email, date) DO UPDATE SET
			num_sessions = excluded.num_sessions,
			lines_added = excluded.lines_added,
			lines_removed = excluded.lines_removed,
			commits = excluded.commits,
			pull_requests = excluded.pull_requests,
			edit_accepted = excluded.edit_accepted,
			edit_rejected = excluded.edit_rejected,
			write_accepted = excluded.write_accepted,
			write_rejected = excluded.write_rejected,
			multi_edit_accepted = excluded.multi_edit_accepted,
			multi_edit_rejected = excluded.multi_edit_rejected
	`

	_, err := r.db.Exec(query,
		usage.ID, usage.Email, usage.Date, usage.NumSessions, usage.LinesAdded, usage.LinesRemoved,
		usage.Commits, usage.PullRequests, usage.EditAccepted, usage.EditRejected,
		usage.WriteAccepted, usage.WriteRejected, usage.MultiEditAccepted, usage.MultiEditRejected,
	)

	return err
}

// UsageAggregate is the per-person rollup consumed by the outlier engine
type UsageAggregate struct {
	Login     string
	AvatarURL *string
	Sessions  int
	Accepted  int
	Rejected  int
}

// AggregateByLogin rolls up usage between two dates (inclusive,
// YYYY-MM-DD) for users whose email is known
func (r *AIUsageRepository) AggregateByLogin(startDate, endDate string) ([]*UsageAggregate, error) {
	query := `
		SELECT u.github_login, u.avatar_url,
			COALESCE(SUM(a.num_sessions), 0),
			COALESCE(SUM(a.edit_accepted + a.write_accepted + a.multi_edit_accepted), 0),
			COALESCE(SUM(a.edit_rejected + a.write_rejected + a.multi_edit_rejected), 0)
		FROM ai_usage a
		INNER JOIN users u ON u.email = a.email
		WHERE a.date >= ? AND a.date <= ?
		GROUP BY u.github_login
	`

	rows, err := r.db.Query(query, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggregates []*UsageAggregate
	for rows.Next() {
		var agg UsageAggregate
		if err := rows.Scan(&agg.Login, &agg.AvatarURL, &agg.Sessions, &agg.Accepted, &agg.Rejected); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, &agg)
	}

	return aggregates, rows.Err()
}
