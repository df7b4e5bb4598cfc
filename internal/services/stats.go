package services

import (
	"math"
	"sort"
	"time"
)

const (
	weekSeconds = 7 * 24 * 60 * 60
	// Unix epoch fell on a Thursday; shifting by three days aligns
	// week buckets to Monday.
	mondayOffset = 3 * 24 * 60 * 60
)

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation, 0 for an empty slice
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// Median returns the middle value, 0 for an empty slice
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 != 0 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Percentile returns the p-th percentile using the nearest-rank method
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// RollingAverage averages up to the last windowSize values
func RollingAverage(values []float64, windowSize int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) > windowSize {
		values = values[len(values)-windowSize:]
	}
	return Mean(values)
}

// WeekStart returns the Monday-aligned week bucket containing the
// given Unix timestamp
func WeekStart(unix int64) int64 {
	shifted := unix + mondayOffset
	return shifted - shifted%weekSeconds - mondayOffset
}

// EpochWeek returns the raw epoch-aligned week bucket for a timestamp
func EpochWeek(unix int64) int64 {
	return unix - unix%weekSeconds
}

// FormatDate renders a time as YYYY-MM-DD in UTC
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Round1 rounds to one decimal place
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
