package survival

import (
	"math"
	"sort"

	domain "taxosurv/domain/survival"

	"gonum.org/v1/gonum/stat/distuv"
)

// LogRankResult holds the two-sample log-rank test outcome.
// Statistic and PValue are NaN when the variance sum is zero, which happens
// when either group is empty or no events were observed.
type LogRankResult struct {
	Statistic        float64
	PValue           float64
	ObservedA        float64
	ExpectedA        float64
	Variance         float64
	DegreesOfFreedom int
}

// LogRank compares the event-time distributions of a and b.
// Either group may be empty.
func LogRank(a, b []domain.Observation) LogRankResult {
	sa := sortedByTime(a)
	sb := sortedByTime(b)

	var observed, expected, variance float64
	ia, ib := 0, 0 // first index still at risk in each group

	for _, t := range eventTimes(sa, sb) {
		for ia < len(sa) && sa[ia].Time < t {
			ia++
		}
		for ib < len(sb) && sb[ib].Time < t {
			ib++
		}
		nA := float64(len(sa) - ia)
		nB := float64(len(sb) - ib)
		dA := float64(eventsAt(sa[ia:], t))
		dB := float64(eventsAt(sb[ib:], t))

		n := nA + nB
		d := dA + dB
		observed += dA
		expected += d * nA / n
		if n > 1 {
			variance += nA * nB * d * (n - d) / (n * n * (n - 1))
		}
	}

	result := LogRankResult{
		Statistic:        math.NaN(),
		PValue:           math.NaN(),
		ObservedA:        observed,
		ExpectedA:        expected,
		Variance:         variance,
		DegreesOfFreedom: 1,
	}
	if variance <= 0 {
		return result
	}

	diff := observed - expected
	result.Statistic = diff * diff / variance
	result.PValue = ChiSquarePValue(result.Statistic, result.DegreesOfFreedom)
	return result
}

// ChiSquarePValue is the upper tail probability of a chi-square distribution
func ChiSquarePValue(statistic float64, degreesOfFreedom int) float64 {
	if math.IsNaN(statistic) || degreesOfFreedom <= 0 {
		return math.NaN()
	}
	chiDist := distuv.ChiSquared{K: float64(degreesOfFreedom)}
	return chiDist.Survival(statistic)
}

func sortedByTime(obs []domain.Observation) []domain.Observation {
	out := make([]domain.Observation, len(obs))
	copy(out, obs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time < out[j].Time
	})
	return out
}

// eventTimes returns the distinct times with at least one event in either group
func eventTimes(a, b []domain.Observation) []float64 {
	var times []float64
	for _, group := range [][]domain.Observation{a, b} {
		for _, o := range group {
			if o.Event {
				times = append(times, o.Time)
			}
		}
	}
	sort.Float64s(times)

	distinct := times[:0]
	for _, t := range times {
		if len(distinct) == 0 || t != distinct[len(distinct)-1] {
			distinct = append(distinct, t)
		}
	}
	return distinct
}

// eventsAt counts events at exactly t in a time-sorted slice starting at or after t
func eventsAt(sorted []domain.Observation, t float64) int {
	count := 0
	for _, o := range sorted {
		if o.Time != t {
			break
		}
		if o.Event {
			count++
		}
	}
	return count
}
