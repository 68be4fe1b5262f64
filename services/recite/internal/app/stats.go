package app

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Stats is the statistics page payload.
type Stats struct {
	Personal PersonalStats `json:"personal"`
	Overall  OverallStats  `json:"overall"`
}

type PersonalStats struct {
	TotalUsageSeconds    int64   `json:"totalUsageSeconds"`
	TotalPracticeSeconds int64   `json:"totalPracticeSeconds"`
	Diligence            float64 `json:"diligence"`
	LoginDays            int64   `json:"loginDays"`
}

type OverallStats struct {
	Users              int64   `json:"users"`
	AvgUsageSeconds    int64   `json:"avgUsageSeconds"`
	AvgPracticeSeconds int64   `json:"avgPracticeSeconds"`
	AvgDiligence       float64 `json:"avgDiligence"`
}

// Stats computes the caller's counters next to the all-user averages. An
// unknown caller gets zeros.
func (a *App) Stats(ctx context.Context, token string) (Stats, error) {
	var out Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		personal, err := a.personalStats(gctx, token)
		out.Personal = personal
		return err
	})
	g.Go(func() error {
		overall, err := a.overallStats(gctx)
		out.Overall = overall
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return out, nil
}

func (a *App) personalStats(ctx context.Context, token string) (PersonalStats, error) {
	user, ok, err := a.lookupUser(ctx, token)
	if err != nil || !ok {
		return PersonalStats{}, err
	}
	stat, _, err := a.store.GetStat(ctx, user.ID)
	if err != nil {
		return PersonalStats{}, fmt.Errorf("get stat: %w", err)
	}
	days, err := a.store.CountLoginDays(ctx, user.ID)
	if err != nil {
		return PersonalStats{}, fmt.Errorf("count login days: %w", err)
	}
	return PersonalStats{
		TotalUsageSeconds:    stat.UsageSeconds,
		TotalPracticeSeconds: stat.PracticeSeconds,
		Diligence:            diligence(float64(stat.PracticeSeconds), float64(stat.UsageSeconds)),
		LoginDays:            days,
	}, nil
}

func (a *App) overallStats(ctx context.Context) (OverallStats, error) {
	agg, err := a.store.AggregateStats(ctx)
	if err != nil {
		return OverallStats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	avgUsage := finiteOrZero(deref(agg.AvgUsageSeconds))
	avgPractice := finiteOrZero(deref(agg.AvgPracticeSeconds))
	return OverallStats{
		Users:              agg.Users,
		AvgUsageSeconds:    int64(math.Round(avgUsage)),
		AvgPracticeSeconds: int64(math.Round(avgPractice)),
		AvgDiligence:       diligence(avgPractice, avgUsage),
	}, nil
}

// diligence is practice time per second of usage; usage below one second
// counts as one.
func diligence(practice, usage float64) float64 {
	return finiteOrZero(practice / math.Max(1, usage))
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
