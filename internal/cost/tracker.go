// Package cost tracks token usage and spend across routed requests, broken
// down by day and by month, for the daemon's cost-reporting endpoint.
package cost

import (
	"sync"
	"time"
)

// Tracker accumulates daily and monthly token/cost counters. It is safe for
// concurrent use; the facade calls Record once per completed request.
type Tracker struct {
	mu      sync.Mutex
	daily   DailyStats
	monthly MonthlyStats
}

// DailyStats tracks usage for the current day.
type DailyStats struct {
	Date        string  `json:"date"`
	LocalTokens int64   `json:"local_tokens"`
	CloudTokens int64   `json:"cloud_tokens"`
	CloudCost   float64 `json:"cloud_cost"`
	SavedCost   float64 `json:"saved_cost"`
	Requests    int64   `json:"requests"`
}

// MonthlyStats tracks usage for the current month.
type MonthlyStats struct {
	Month       string  `json:"month"`
	LocalTokens int64   `json:"local_tokens"`
	CloudTokens int64   `json:"cloud_tokens"`
	CloudCost   float64 `json:"cloud_cost"`
	SavedCost   float64 `json:"saved_cost"`
	Requests    int64   `json:"requests"`
	LocalRate   float64 `json:"local_rate"`
}

// NewTracker builds a Tracker with today's date and the current month
// already stamped, so a freshly started daemon reports a sensible period
// before any request completes.
func NewTracker(now time.Time) *Tracker {
	return &Tracker{
		daily:   DailyStats{Date: now.Format("2006-01-02")},
		monthly: MonthlyStats{Month: now.Format("2006-01")},
	}
}

// Record folds one completed request's usage into the running totals,
// rolling over to a fresh period if now has crossed into a new day/month.
func (t *Tracker) Record(now time.Time, isLocal bool, tokensIn, tokensOut int, cloudCost, savedCost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := now.Format("2006-01-02")
	if day != t.daily.Date {
		t.daily = DailyStats{Date: day}
	}
	month := now.Format("2006-01")
	if month != t.monthly.Month {
		t.monthly = MonthlyStats{Month: month}
	}

	tokens := int64(tokensIn + tokensOut)
	if isLocal {
		t.daily.LocalTokens += tokens
		t.monthly.LocalTokens += tokens
		t.daily.SavedCost += savedCost
		t.monthly.SavedCost += savedCost
	} else {
		t.daily.CloudTokens += tokens
		t.monthly.CloudTokens += tokens
		t.daily.CloudCost += cloudCost
		t.monthly.CloudCost += cloudCost
	}
	t.daily.Requests++
	t.monthly.Requests++

	total := t.monthly.LocalTokens + t.monthly.CloudTokens
	if total > 0 {
		t.monthly.LocalRate = float64(t.monthly.LocalTokens) / float64(total) * 100
	}
}

// Snapshot returns copies of the current daily and monthly totals.
func (t *Tracker) Snapshot() (DailyStats, MonthlyStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.daily, t.monthly
}
