package txn

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DuplicateSimilarity is the minimum description similarity for two
// same-day, same-amount transactions to be reported as possible duplicates.
const DuplicateSimilarity = 0.85

// DuplicateGroup is a set of transactions that look like the same entry
// reported more than once. Duplicates are advisory and never removed.
type DuplicateGroup struct {
	Date         string        `json:"date"`
	Amount       string        `json:"amount"`
	Transactions []Transaction `json:"transactions"`
	Similarity   float64       `json:"similarity"`
}

// FindDuplicates groups transactions by date and amount and reports groups
// whose descriptions are near-identical.
func FindDuplicates(transactions []Transaction) []DuplicateGroup {
	type key struct {
		date   string
		amount string
	}

	var order []key
	groups := make(map[key][]Transaction)
	for _, t := range transactions {
		k := key{date: t.Date.Format("2006-01-02"), amount: t.Amount.StringFixed(2)}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	result := []DuplicateGroup{}
	for _, k := range order {
		members := groups[k]
		if len(members) < 2 {
			continue
		}

		used := make([]bool, len(members))
		for i := 0; i < len(members); i++ {
			if used[i] {
				continue
			}
			group := []Transaction{members[i]}
			best := 0.0
			for j := i + 1; j < len(members); j++ {
				if used[j] {
					continue
				}
				sim := Similarity(members[i].Description, members[j].Description)
				if sim >= DuplicateSimilarity {
					used[j] = true
					group = append(group, members[j])
					if sim > best {
						best = sim
					}
				}
			}
			if len(group) > 1 {
				result = append(result, DuplicateGroup{
					Date:         k.date,
					Amount:       k.amount,
					Transactions: group,
					Similarity:   best,
				})
			}
		}
	}

	return result
}

// Similarity returns a 0..1 ratio based on the edit distance between two
// normalized descriptions. Identical strings score 1.
func Similarity(a, b string) float64 {
	a = normalizeDescription(a)
	b = normalizeDescription(b)
	if a == b {
		return 1
	}

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
