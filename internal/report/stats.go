// Package report aggregates audit statistics, assembles structured reports,
// and produces export artifacts with redaction, compression, and encryption.
package report

import (
	"context"
	"sort"
	"time"

	"bitacora/internal/audit"
	dErrors "bitacora/pkg/domain-errors"
)

// Thresholds are the tunable parameters of the compliance score. The
// defaults mirror long-standing operational practice but are configuration,
// not business law.
type Thresholds struct {
	CriticalRatio     float64 // deduct when critical events exceed this share
	CriticalDeduction float64
	ErrorRatio        float64 // deduct when errors exceed this share
	ErrorDeduction    float64
}

// DefaultThresholds returns the standard scoring parameters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CriticalRatio:     0.05,
		CriticalDeduction: 10,
		ErrorRatio:        0.02,
		ErrorDeduction:    5,
	}
}

// RankEntry is one row of a most-active ranking.
type RankEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TrendPoint is one day of the trailing trend.
type TrendPoint struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Stats is the aggregate view over a filtered slice of the trail.
type Stats struct {
	TotalEvents int `json:"total_events"`

	ByType     map[audit.EventType]int `json:"by_type"`
	ByCategory map[audit.Category]int  `json:"by_category"`
	BySeverity map[audit.Severity]int  `json:"by_severity"`
	ByState    map[audit.State]int     `json:"by_state"`

	Last24Hours int `json:"last_24_hours"`
	Last7Days   int `json:"last_7_days"`
	Last30Days  int `json:"last_30_days"`

	TopActors     []RankEntry  `json:"top_actors"`
	TopCategories []RankEntry  `json:"top_categories"`
	DailyTrend    []TrendPoint `json:"daily_trend"`

	ComplianceScore float64 `json:"compliance_score"`
}

const (
	statsPageSize = 500
	rankingSize   = 5
	trendDays     = 30
)

// Statistics aggregates counts, rankings, the trailing 30-day trend, and the
// compliance score over events matching the filter. The aggregation is a
// bounded single pass over store pages.
func (e *Engine) Statistics(ctx context.Context, filter audit.Filter) (Stats, error) {
	now := e.clock()
	stats := Stats{
		ByType:     make(map[audit.EventType]int),
		ByCategory: make(map[audit.Category]int),
		BySeverity: make(map[audit.Severity]int),
		ByState:    make(map[audit.State]int),
	}

	actorCounts := make(map[string]int)
	trendCounts := make(map[string]int)
	trendStart := now.AddDate(0, 0, -trendDays)

	err := e.forEachMatch(ctx, filter, func(event audit.Event) {
		stats.TotalEvents++
		stats.ByType[event.Type]++
		stats.ByCategory[event.Category]++
		stats.BySeverity[event.Severity]++
		stats.ByState[event.State]++

		age := now.Sub(event.Timestamp)
		if age <= 24*time.Hour {
			stats.Last24Hours++
		}
		if age <= 7*24*time.Hour {
			stats.Last7Days++
		}
		if age <= 30*24*time.Hour {
			stats.Last30Days++
		}

		if event.ActorID != "" {
			actorCounts[event.ActorID]++
		}
		if event.Timestamp.After(trendStart) {
			trendCounts[event.Timestamp.UTC().Format("2006-01-02")]++
		}
	})
	if err != nil {
		return Stats{}, err
	}

	stats.TopActors = rank(actorCounts, rankingSize)
	categoryCounts := make(map[string]int, len(stats.ByCategory))
	for category, count := range stats.ByCategory {
		categoryCounts[string(category)] = count
	}
	stats.TopCategories = rank(categoryCounts, rankingSize)
	stats.DailyTrend = trend(trendCounts, now)
	stats.ComplianceScore = e.complianceScore(stats)

	return stats, nil
}

// complianceScore starts at 100 and deducts when critical or error shares
// exceed their thresholds.
func (e *Engine) complianceScore(stats Stats) float64 {
	score := 100.0
	if stats.TotalEvents == 0 {
		return score
	}
	total := float64(stats.TotalEvents)
	if float64(stats.BySeverity[audit.SeverityCritical])/total > e.thresholds.CriticalRatio {
		score -= e.thresholds.CriticalDeduction
	}
	if float64(stats.BySeverity[audit.SeverityError])/total > e.thresholds.ErrorRatio {
		score -= e.thresholds.ErrorDeduction
	}
	if score < 0 {
		score = 0
	}
	return score
}

// forEachMatch pages through the store and applies fn to every match.
func (e *Engine) forEachMatch(ctx context.Context, filter audit.Filter, fn func(audit.Event)) error {
	for page := 1; ; page++ {
		batch, err := e.events.FindMany(ctx, filter, page, statsPageSize)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "statistics query failed")
		}
		if len(batch.Data) == 0 {
			return nil
		}
		for _, event := range batch.Data {
			fn(event)
		}
		if page >= batch.TotalPages {
			return nil
		}
	}
}

func rank(counts map[string]int, limit int) []RankEntry {
	entries := make([]RankEntry, 0, len(counts))
	for key, count := range counts {
		entries = append(entries, RankEntry{Key: key, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func trend(counts map[string]int, now time.Time) []TrendPoint {
	points := make([]TrendPoint, 0, trendDays)
	for i := trendDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).UTC().Format("2006-01-02")
		points = append(points, TrendPoint{Date: day, Count: counts[day]})
	}
	return points
}
