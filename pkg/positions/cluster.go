package positions

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

// cluster is a group of withdrawals with near-identical amounts.
type cluster struct {
	anchor  int64
	members []txn.Transaction
}

// mean returns the average withdrawal amount rounded to cents.
func (c cluster) mean() decimal.Decimal {
	if len(c.members) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, m := range c.members {
		sum = sum.Add(m.AbsAmount())
	}
	return sum.Div(decimal.NewFromInt(int64(len(c.members)))).Round(2)
}

// clusterWithdrawals buckets withdrawals by amount rounded to whole currency
// units, then merges buckets whose amounts are within the tolerance of the
// cluster's smallest bucket. Clusters below the minimum size are discarded.
// Members of each cluster are sorted by date.
func clusterWithdrawals(transactions []txn.Transaction, opts Options) []cluster {
	buckets := make(map[int64][]txn.Transaction)
	for _, t := range transactions {
		if !t.IsDebit() {
			continue
		}
		key := t.AbsAmount().Round(0).IntPart()
		if key <= 0 {
			continue
		}
		buckets[key] = append(buckets[key], t)
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var merged []cluster
	for _, k := range keys {
		if n := len(merged); n > 0 && k-merged[n-1].anchor <= *opts.AmountTolerance {
			merged[n-1].members = append(merged[n-1].members, buckets[k]...)
			continue
		}
		merged = append(merged, cluster{anchor: k, members: append([]txn.Transaction(nil), buckets[k]...)})
	}

	result := make([]cluster, 0, len(merged))
	for _, c := range merged {
		if len(c.members) < opts.MinOccurrences {
			continue
		}
		sort.SliceStable(c.members, func(i, j int) bool {
			return c.members[i].Date.Before(c.members[j].Date)
		})
		result = append(result, c)
	}
	return result
}
