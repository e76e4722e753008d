package regress

import "github.com/majidrgold/openpolicing/internal/rates"

// GroupsFromResult converts an aggregation result into regression input:
// stops become trials and searches become successes, with the grouping
// attributes as predictor levels.
func GroupsFromResult(res *rates.Result) []GroupCounts {
	out := make([]GroupCounts, 0, len(res.Rows))
	for _, row := range res.Rows {
		levels := make(map[string]string, len(res.GroupBy))
		for i, name := range res.GroupBy {
			levels[name] = row.Key[i]
		}
		out = append(out, GroupCounts{
			Levels:    levels,
			Trials:    row.Stops,
			Successes: row.Searches,
		})
	}
	return out
}
