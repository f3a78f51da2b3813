package survival

import (
	"errors"
	"math"
	"sort"

	domain "taxosurv/domain/survival"
)

var (
	// ErrEmptySample is returned when an estimator is given no observations
	ErrEmptySample = errors.New("survival: empty sample")
	// ErrInvalidTime is returned for a NaN or infinite follow-up time
	ErrInvalidTime = errors.New("survival: non-finite observation time")
)

// Step is one row of the product-limit event table
type Step struct {
	Time     float64
	AtRisk   int
	Events   int
	Censored int
	Survival float64 // S(t) just after Time
}

// Curve is a Kaplan-Meier survival step function
type Curve struct {
	steps []Step
}

// FitKaplanMeier estimates the survival function of obs with the
// product-limit construction. Censored records leave the risk set after
// their time but contribute no factor.
func FitKaplanMeier(obs []domain.Observation) (*Curve, error) {
	if len(obs) == 0 {
		return nil, ErrEmptySample
	}
	for _, o := range obs {
		if math.IsNaN(o.Time) || math.IsInf(o.Time, 0) {
			return nil, ErrInvalidTime
		}
	}

	sorted := make([]domain.Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time < sorted[j].Time
	})

	steps := make([]Step, 0, len(sorted))
	atRisk := len(sorted)
	survival := 1.0

	for i := 0; i < len(sorted); {
		t := sorted[i].Time
		events, censored := 0, 0
		for ; i < len(sorted) && sorted[i].Time == t; i++ {
			if sorted[i].Event {
				events++
			} else {
				censored++
			}
		}

		if events > 0 {
			survival *= 1 - float64(events)/float64(atRisk)
		}
		steps = append(steps, Step{
			Time:     t,
			AtRisk:   atRisk,
			Events:   events,
			Censored: censored,
			Survival: survival,
		})
		atRisk -= events + censored
	}

	return &Curve{steps: steps}, nil
}

// Steps returns a copy of the event table, one row per distinct time
func (c *Curve) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// At evaluates S(t). The curve is right-continuous and equals 1 before the
// first observed time.
func (c *Curve) At(t float64) float64 {
	idx := sort.Search(len(c.steps), func(i int) bool {
		return c.steps[i].Time > t
	})
	if idx == 0 {
		return 1.0
	}
	return c.steps[idx-1].Survival
}

// Final returns the survival probability at the last observed time
func (c *Curve) Final() float64 {
	if len(c.steps) == 0 {
		return 1.0
	}
	return c.steps[len(c.steps)-1].Survival
}

// Median returns the first time at which S(t) <= 0.5
func (c *Curve) Median() domain.Median {
	return c.Quantile(0.5)
}

// Quantile returns the first time at which S(t) <= q
func (c *Curve) Quantile(q float64) domain.Median {
	for _, s := range c.steps {
		if s.Survival <= q {
			return domain.ReachedAt(s.Time)
		}
	}
	return domain.NotReached
}

// Events counts observed events across the curve
func (c *Curve) Events() int {
	total := 0
	for _, s := range c.steps {
		total += s.Events
	}
	return total
}

// Size is the number of observations the curve was fitted on
func (c *Curve) Size() int {
	if len(c.steps) == 0 {
		return 0
	}
	return c.steps[0].AtRisk
}
