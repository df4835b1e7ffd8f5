package risk

import (
	"github.com/pigeonworks-llc/mca-underwriter/pkg/classifier"
)

// Velocity flags.
const (
	AcceleratingDecline = "accelerating_decline"
	Declining           = "declining"
	Growth              = "growth"
	Stable              = "stable"
)

// Velocity thresholds, in percentage points.
const (
	declineThreshold      = -5.0
	growthThreshold       = 5.0
	accelerationThreshold = -2.0
)

// MonthChange is the revenue change between two consecutive months.
type MonthChange struct {
	From    string  `json:"from"`
	To      string  `json:"to"`
	Percent float64 `json:"percent"`
}

// Velocity summarizes the month-over-month revenue trend.
type Velocity struct {
	Changes       []MonthChange `json:"changes"`
	AverageChange float64       `json:"average_change"`
	Acceleration  float64       `json:"acceleration"`
	Flag          string        `json:"flag"`
}

// computeVelocity averages month-over-month changes of net deposits and the
// differences between consecutive changes. Pairs whose earlier month has no
// revenue are skipped.
func computeVelocity(months []classifier.MonthlyBucket) Velocity {
	v := Velocity{Changes: []MonthChange{}, Flag: Stable}

	for i := 1; i < len(months); i++ {
		prev, cur := months[i-1], months[i]
		if !prev.NetDeposits.IsPositive() {
			continue
		}
		pct := cur.NetDeposits.Sub(prev.NetDeposits).Div(prev.NetDeposits).InexactFloat64() * 100
		v.Changes = append(v.Changes, MonthChange{From: prev.Month, To: cur.Month, Percent: round2(pct)})
	}

	if len(v.Changes) == 0 {
		return v
	}

	sum := 0.0
	for _, c := range v.Changes {
		sum += c.Percent
	}
	v.AverageChange = round2(sum / float64(len(v.Changes)))

	if len(v.Changes) > 1 {
		diffs := 0.0
		for i := 1; i < len(v.Changes); i++ {
			diffs += v.Changes[i].Percent - v.Changes[i-1].Percent
		}
		v.Acceleration = round2(diffs / float64(len(v.Changes)-1))
	}

	switch {
	case v.AverageChange < declineThreshold && v.Acceleration < accelerationThreshold:
		v.Flag = AcceleratingDecline
	case v.AverageChange < declineThreshold:
		v.Flag = Declining
	case v.AverageChange > growthThreshold:
		v.Flag = Growth
	}
	return v
}
