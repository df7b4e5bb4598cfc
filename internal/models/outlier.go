package models

// Outlier detection strategies
const (
	OutlierTypeStatistical  = "statistical"
	OutlierTypeTop          = "top"
	OutlierTypeBottom       = "bottom"
	OutlierTypeTrendDecline = "trend_decline"
)

// Outlier severities
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Outlier is one flagged (person, metric) anomaly
type Outlier struct {
	Login     string  `json:"login"`
	AvatarURL *string `json:"avatar_url"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	TeamMean  float64 `json:"team_mean"`
	Type      string  `json:"type"`
	Severity  string  `json:"severity"`
}

// PersonMetric is one person's value for a single metric
type PersonMetric struct {
	Login     string  `json:"login"`
	AvatarURL *string `json:"avatar_url"`
	Value     float64 `json:"value"`
}
