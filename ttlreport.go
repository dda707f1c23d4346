package dollcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TTLReport summarizes the recorded expiration history. Plain data so any
// presentation layer (terminal, dashboard, test harness) can render it.
type TTLReport struct {
	Samples         int           // recorded expirations analyzed; 0 => no data
	TotalKeys       int64         // all computations since the last reset
	Clustered       int64
	Distributed     int64
	AvgJitter       time.Duration
	Buckets         int     // occupied histogram windows
	ClusteringScore float64 // fraction of samples in the densest window, [0, 1]
	Assessment      string  // qualitative label derived from the score
}

// ClusteringTrial is one half of a CompareClusteringModes run.
type ClusteringTrial struct {
	Prevention      bool
	Keys            int
	Elapsed         time.Duration
	ClusteringScore float64
}

// ClusteringComparison contrasts synchronized vs jittered expirations over
// identical synthetic workloads.
type ClusteringComparison struct {
	Clustered      ClusteringTrial // prevention forced off
	Distributed    ClusteringTrial // prevention forced on
	Recommendation string
}

// AnalyzeExpirationPatterns buckets recorded expiration timestamps into
// fixed-width windows. The clustering score is the fraction of samples
// landing in the single most-populated window: 0 approaches a perfectly
// uniform spread, 1 means every entry expires in the same instant. A bounded,
// well-understood metric - deliberately not variance or entropy.
func (o *TTLOptimizer) AnalyzeExpirationPatterns() *TTLReport {
	hist := o.stats.expirations()
	snap := o.stats.snapshot()

	report := &TTLReport{
		Samples:     len(hist),
		TotalKeys:   snap.TotalKeys,
		Clustered:   snap.Clustered,
		Distributed: snap.Distributed,
		AvgJitter:   snap.AvgJitter,
	}
	if len(hist) == 0 {
		report.Assessment = "no data"
		return report
	}

	buckets := o.bucketize(hist)
	var densest int
	for _, n := range buckets {
		if n > densest {
			densest = n
		}
	}
	report.Buckets = len(buckets)
	report.ClusteringScore = float64(densest) / float64(len(hist))

	switch {
	case report.ClusteringScore >= 0.5:
		report.Assessment = "clustered"
	case report.ClusteringScore >= 0.2:
		report.Assessment = "mixed"
	default:
		report.Assessment = "uniform"
	}
	return report
}

// DistributionChart renders the expiration histogram as a fixed-width ASCII
// bar chart for terminal display.
func (o *TTLOptimizer) DistributionChart(width int) string {
	if width <= 0 {
		width = 40
	}
	hist := o.stats.expirations()
	if len(hist) == 0 {
		return "no expiration data recorded"
	}

	buckets := o.bucketize(hist)
	ids := make([]int64, 0, len(buckets))
	var maxCount int
	for id, n := range buckets {
		ids = append(ids, id)
		if n > maxCount {
			maxCount = n
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	widthMs := o.bucketWidth.Milliseconds()
	var b strings.Builder
	for _, id := range ids {
		n := buckets[id]
		bar := n * width / maxCount
		if bar == 0 {
			bar = 1
		}
		at := time.UnixMilli(id * widthMs)
		fmt.Fprintf(&b, "%s | %s (%d)\n", at.Format("15:04:05.000"), strings.Repeat("#", bar), n)
	}
	return b.String()
}

// CompareClusteringModes runs two controlled trials - prevention forced off,
// then on - each writing numKeys synthetic entries, and reports the elapsed
// setup time and clustering score of each. Trial keys are deleted afterwards
// and the accumulator is reset around each trial, so run this between demo
// sessions, not alongside real traffic.
func (o *TTLOptimizer) CompareClusteringModes(ctx context.Context, numKeys int, base time.Duration) (*ClusteringComparison, error) {
	if numKeys <= 0 {
		return nil, fmt.Errorf("compare clustering: numKeys must be positive, got %d", numKeys)
	}
	if base <= 0 {
		return nil, fmt.Errorf("compare clustering: %w", ErrNonPositiveTTL)
	}

	trialID, err := o.store.Incr(ctx, "ttltrial:seq")
	if err != nil {
		return nil, fmt.Errorf("compare clustering: trial id: %w", err)
	}

	clustered, err := o.runTrial(ctx, trialID, numKeys, base, false)
	if err != nil {
		return nil, err
	}
	distributed, err := o.runTrial(ctx, trialID, numKeys, base, true)
	if err != nil {
		return nil, err
	}

	out := &ClusteringComparison{Clustered: *clustered, Distributed: *distributed}
	if distributed.ClusteringScore < clustered.ClusteringScore {
		out.Recommendation = fmt.Sprintf(
			"enable clustering prevention: densest-window share drops from %.2f to %.2f",
			clustered.ClusteringScore, distributed.ClusteringScore)
	} else {
		out.Recommendation = fmt.Sprintf(
			"jitter made no measurable difference at this scale (%.2f vs %.2f); widen the jitter range or the workload",
			clustered.ClusteringScore, distributed.ClusteringScore)
	}
	return out, nil
}

func (o *TTLOptimizer) runTrial(ctx context.Context, trialID int64, numKeys int, base time.Duration, prevention bool) (*ClusteringTrial, error) {
	mode := "clustered"
	if prevention {
		mode = "distributed"
	}

	o.ResetStats()
	keys := make([]string, numKeys)
	start := time.Now()
	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("ttltrial:%d:%s:%d", trialID, mode, i)
		if _, err := o.SetWithDistributedTTL(ctx, keys[i], map[string]any{"i": i}, base, &prevention); err != nil {
			_, _ = o.store.Delete(ctx, keys[:i+1]...)
			return nil, fmt.Errorf("compare clustering (%s trial): %w", mode, err)
		}
	}
	elapsed := time.Since(start)
	score := o.AnalyzeExpirationPatterns().ClusteringScore
	o.ResetStats()

	if _, err := o.store.Delete(ctx, keys...); err != nil {
		o.log.Warn("trial cleanup failed", Fields{"trial": trialID, "mode": mode, "err": err})
	}
	return &ClusteringTrial{
		Prevention:      prevention,
		Keys:            numKeys,
		Elapsed:         elapsed,
		ClusteringScore: score,
	}, nil
}

func (o *TTLOptimizer) bucketize(hist []time.Time) map[int64]int {
	widthMs := o.bucketWidth.Milliseconds()
	buckets := make(map[int64]int)
	for _, t := range hist {
		buckets[t.UnixMilli()/widthMs]++
	}
	return buckets
}
