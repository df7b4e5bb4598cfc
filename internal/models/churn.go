package models

// ChurnWeek is one weekly churn bucket. Rate is a percentage rounded
// to one decimal place, 0 when TotalLines is 0.
type ChurnWeek struct {
	Week         string  `json:"week"` // YYYY-MM-DD of the week start
	Rate         float64 `json:"rate"`
	ChurnedLines int     `json:"churned_lines"`
	TotalLines   int     `json:"total_lines"`
}
