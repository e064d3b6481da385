package governance

import "sort"

// Migration counts merchants that moved from one tier to another between two
// evaluations of the same population.
type Migration struct {
	From  string
	To    string
	Count int
}

// Migrations pairs baseline and scenario results by merchant ID and reports
// every tier change, largest first. Records that failed in either run are
// ignored.
func Migrations(baseline, scenario []Result) []Migration {
	before := make(map[string]string, len(baseline))
	for _, r := range baseline {
		if r.Err == nil {
			before[r.MerchantID] = r.Tier
		}
	}

	counts := make(map[[2]string]int)
	for _, r := range scenario {
		if r.Err != nil {
			continue
		}
		from, ok := before[r.MerchantID]
		if !ok || from == r.Tier {
			continue
		}
		counts[[2]string{from, r.Tier}]++
	}

	out := make([]Migration, 0, len(counts))
	for k, n := range counts {
		out = append(out, Migration{From: k[0], To: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
