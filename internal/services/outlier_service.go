package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alimgiray/prpulse/internal/models"
	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/alimgiray/prpulse/pkg/logger"
)

// Metric labels reported with outliers
const (
	MetricPRsMerged     = "PRs Merged"
	MetricReviewsGiven  = "Reviews Given"
	MetricLinesWritten  = "Lines Written"
	MetricAISessions    = "AI Sessions"
	MetricAILowAdoption = "AI Sessions (low adoption)"
	MetricAIAcceptRate  = "AI Accept Rate (low)"
	MetricTrendDecline  = "PRs Merged (trend decline)"
)

// Cohort gates: a person only enters a cohort above the metric's floor,
// and the AI cohort must have at least this many people to be judged.
const (
	minPRsMerged    = 3
	minReviewsGiven = 3
	minLinesWritten = 10
	minAICohort     = 3
)

// DefaultServiceAccounts are logins excluded from every cohort
var DefaultServiceAccounts = []string{
	"github-actions",
	"dependabot",
	"renovate",
	"coderabbitai",
	"greptile-apps",
	"graphite-app",
	"cursor",
	"claude",
}

// OutlierService flags per-person anomalies across period metrics using
// statistical, top/bottom and trend-decline detectors.
type OutlierService struct {
	prRepo          *repositories.PullRequestRepository
	reviewRepo      *repositories.PRReviewRepository
	usageRepo       *repositories.AIUsageRepository
	serviceAccounts map[string]struct{}
}

func NewOutlierService(
	prRepo *repositories.PullRequestRepository,
	reviewRepo *repositories.PRReviewRepository,
	usageRepo *repositories.AIUsageRepository,
	serviceAccounts []string,
) *OutlierService {
	accounts := make(map[string]struct{}, len(serviceAccounts))
	for _, login := range serviceAccounts {
		accounts[strings.ToLower(login)] = struct{}{}
	}

	return &OutlierService{
		prRepo:          prRepo,
		reviewRepo:      reviewRepo,
		usageRepo:       usageRepo,
		serviceAccounts: accounts,
	}
}

// IsServiceAccount classifies bot and automation logins so they never
// enter a cohort.
func (s *OutlierService) IsServiceAccount(login string) bool {
	lower := strings.ToLower(login)
	if _, ok := s.serviceAccounts[lower]; ok {
		return true
	}
	return strings.HasSuffix(lower, "[bot]") || strings.HasSuffix(lower, "-bot")
}

// Detect runs the statistical and top/bottom detectors over every
// period metric in [start, end]. Duplicate (login, metric) pairs are
// dropped, first occurrence wins.
func (s *OutlierService) Detect(start, end time.Time) ([]*models.Outlier, error) {
	var outliers []*models.Outlier

	prCounts, err := s.prRepo.CountMergedByAuthor(start, end)
	if err != nil {
		return nil, err
	}
	prData := s.cohort(prCounts, minPRsMerged)
	outliers = append(outliers, detectTopBottom(prData, MetricPRsMerged)...)
	outliers = append(outliers, detectStatistical(prData, MetricPRsMerged)...)

	reviewCounts, err := s.reviewRepo.CountSubmittedByReviewer(start, end)
	if err != nil {
		return nil, err
	}
	reviewData := s.cohort(reviewCounts, minReviewsGiven)
	outliers = append(outliers, detectTopBottom(reviewData, MetricReviewsGiven)...)
	outliers = append(outliers, detectStatistical(reviewData, MetricReviewsGiven)...)

	lineSums, err := s.prRepo.SumFilteredLinesByAuthor(start, end)
	if err != nil {
		return nil, err
	}
	lineData := s.cohort(lineSums, minLinesWritten)
	outliers = append(outliers, detectTopBottom(lineData, MetricLinesWritten)...)
	outliers = append(outliers, detectStatistical(lineData, MetricLinesWritten)...)

	outliers = append(outliers, s.detectAI(start, end, prCounts)...)

	return dedupe(outliers), nil
}

// detectAI covers the usage-metering metrics. The usage table may be
// absent or empty; every failure here degrades to no findings.
func (s *OutlierService) detectAI(start, end time.Time, prCounts []*models.PersonMetric) []*models.Outlier {
	aggregates, err := s.usageRepo.AggregateByLogin(FormatDate(start), FormatDate(end))
	if err != nil {
		logger.WithError(err).Debug("Usage data unavailable, skipping AI outliers")
		return nil
	}
	if len(aggregates) < minAICohort {
		return nil
	}

	var outliers []*models.Outlier

	var sessionData []*models.PersonMetric
	for _, agg := range aggregates {
		if s.IsServiceAccount(agg.Login) {
			continue
		}
		sessionData = append(sessionData, &models.PersonMetric{
			Login:     agg.Login,
			AvatarURL: agg.AvatarURL,
			Value:     float64(agg.Sessions),
		})
	}

	outliers = append(outliers, detectTopBottom(sessionData, MetricAISessions)...)
	outliers = append(outliers, detectStatistical(sessionData, MetricAISessions)...)

	// Contributors who merged PRs but never show up in the usage data
	// are flagged as non-adopters.
	teamMean := Round1(Mean(metricValues(sessionData)))
	aiLogins := make(map[string]struct{}, len(aggregates))
	for _, agg := range aggregates {
		aiLogins[agg.Login] = struct{}{}
	}
	for _, contributor := range prCounts {
		if s.IsServiceAccount(contributor.Login) {
			continue
		}
		if _, ok := aiLogins[contributor.Login]; ok {
			continue
		}
		outliers = append(outliers, &models.Outlier{
			Login:     contributor.Login,
			AvatarURL: contributor.AvatarURL,
			Metric:    MetricAILowAdoption,
			Value:     0,
			TeamMean:  teamMean,
			Type:      models.OutlierTypeBottom,
			Severity:  models.SeverityWarning,
		})
	}

	for _, agg := range aggregates {
		if s.IsServiceAccount(agg.Login) {
			continue
		}
		total := agg.Accepted + agg.Rejected
		if total < 10 {
			continue
		}
		rate := math.Round(float64(agg.Accepted) / float64(total) * 100)
		if rate < 50 {
			outliers = append(outliers, &models.Outlier{
				Login:     agg.Login,
				AvatarURL: agg.AvatarURL,
				Metric:    MetricAIAcceptRate,
				Value:     rate,
				TeamMean:  50,
				Type:      models.OutlierTypeBottom,
				Severity:  models.SeverityWarning,
			})
		}
	}

	return outliers
}

// TrendDecline flags people whose merge output in the most recent full
// week fell below 40% of their rolling baseline. Weeks are
// Monday-aligned; the baseline averages up to the last 4 prior weeks
// and must be at least 3 merges per week to matter.
func (s *OutlierService) TrendDecline(end time.Time) ([]*models.Outlier, error) {
	const oneWeek = weekSeconds * time.Second

	rollingStart := end.Add(-5 * oneWeek)
	currentWeek := WeekStart(end.Add(-oneWeek).Unix())

	merges, err := s.prRepo.GetMergedWithAuthorBetween(rollingStart, end)
	if err != nil {
		return nil, err
	}

	type personWeeks struct {
		avatarURL *string
		weeks     map[int64]float64
	}
	byPerson := make(map[string]*personWeeks)
	for _, m := range merges {
		if s.IsServiceAccount(m.Login) {
			continue
		}
		p := byPerson[m.Login]
		if p == nil {
			p = &personWeeks{avatarURL: m.AvatarURL, weeks: make(map[int64]float64)}
			byPerson[m.Login] = p
		}
		p.weeks[WeekStart(m.MergedAt.Unix())]++
	}

	logins := make([]string, 0, len(byPerson))
	for login := range byPerson {
		logins = append(logins, login)
	}
	sort.Strings(logins)

	var outliers []*models.Outlier
	for _, login := range logins {
		p := byPerson[login]
		current := p.weeks[currentWeek]

		priorWeeks := make([]int64, 0, len(p.weeks))
		for week := range p.weeks {
			if week < currentWeek {
				priorWeeks = append(priorWeeks, week)
			}
		}
		if len(priorWeeks) < 3 {
			continue
		}
		sort.Slice(priorWeeks, func(i, j int) bool { return priorWeeks[i] < priorWeeks[j] })

		prior := make([]float64, len(priorWeeks))
		for i, week := range priorWeeks {
			prior[i] = p.weeks[week]
		}

		rolling := RollingAverage(prior, 4)
		if rolling >= 3 && current < rolling*0.4 {
			outliers = append(outliers, &models.Outlier{
				Login:     login,
				AvatarURL: p.avatarURL,
				Metric:    MetricTrendDecline,
				Value:     current,
				TeamMean:  Round1(rolling),
				Type:      models.OutlierTypeTrendDecline,
				Severity:  models.SeverityWarning,
			})
		}
	}

	return outliers, nil
}

// cohort drops service accounts and values below the metric floor
func (s *OutlierService) cohort(data []*models.PersonMetric, minValue float64) []*models.PersonMetric {
	var cohort []*models.PersonMetric
	for _, d := range data {
		if d.Value < minValue || s.IsServiceAccount(d.Login) {
			continue
		}
		cohort = append(cohort, d)
	}
	return cohort
}

// detectStatistical flags anyone more than 2 standard deviations from
// the cohort mean. A flat cohort (stddev 0) produces nothing.
func detectStatistical(data []*models.PersonMetric, metric string) []*models.Outlier {
	values := metricValues(data)
	m := Mean(values)
	sd := StdDev(values)
	if sd == 0 {
		return nil
	}

	var outliers []*models.Outlier
	for _, d := range data {
		deviation := d.Value - m
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation <= 2*sd {
			continue
		}

		severity := models.SeverityInfo
		if d.Value < m {
			severity = models.SeverityWarning
		}
		outliers = append(outliers, &models.Outlier{
			Login:     d.Login,
			AvatarURL: d.AvatarURL,
			Metric:    metric,
			Value:     d.Value,
			TeamMean:  Round1(m),
			Type:      models.OutlierTypeStatistical,
			Severity:  severity,
		})
	}

	return outliers
}

// detectTopBottom flags up to 3 top performers above 1.5x the mean and
// up to 3 bottom performers below 0.5x. Needs a cohort of at least 5.
func detectTopBottom(data []*models.PersonMetric, metric string) []*models.Outlier {
	if len(data) < 5 {
		return nil
	}

	sorted := append([]*models.PersonMetric(nil), data...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })
	m := Mean(metricValues(data))

	var outliers []*models.Outlier
	for _, d := range sorted[:3] {
		if d.Value > m*1.5 {
			outliers = append(outliers, &models.Outlier{
				Login:     d.Login,
				AvatarURL: d.AvatarURL,
				Metric:    metric,
				Value:     d.Value,
				TeamMean:  Round1(m),
				Type:      models.OutlierTypeTop,
				Severity:  models.SeverityInfo,
			})
		}
	}

	for _, d := range sorted[len(sorted)-3:] {
		if d.Value < m*0.5 {
			outliers = append(outliers, &models.Outlier{
				Login:     d.Login,
				AvatarURL: d.AvatarURL,
				Metric:    metric,
				Value:     d.Value,
				TeamMean:  Round1(m),
				Type:      models.OutlierTypeBottom,
				Severity:  models.SeverityWarning,
			})
		}
	}

	return outliers
}

func metricValues(data []*models.PersonMetric) []float64 {
	values := make([]float64, len(data))
	for i, d := range data {
		values[i] = d.Value
	}
	return values
}

func dedupe(outliers []*models.Outlier) []*models.Outlier {
	seen := make(map[string]struct{}, len(outliers))
	deduped := make([]*models.Outlier, 0, len(outliers))
	for _, o := range outliers {
		key := fmt.Sprintf("%s:%s", o.Login, o.Metric)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, o)
	}
	return deduped
}
