package pipeline

import "ig_leadgen/models"

// Dedupe splits candidates into first-occurrence uniques (input order
// preserved) and the set of usernames that recurred under the same
// tag|username key. An empty tag or username still forms a valid, degenerate
// key: its second occurrence is flagged like any other duplicate, which
// tombstones malformed input instead of erroring. Callers filter empty keys
// before persistence.
func Dedupe(candidates []models.Candidate) ([]models.Candidate, map[string]bool) {
	seen := make(map[string]bool, len(candidates))
	duplicates := make(map[string]bool)
	unique := make([]models.Candidate, 0, len(candidates))

	for _, c := range candidates {
		key := c.Key()
		if seen[key] {
			duplicates[c.Username] = true
			continue
		}
		seen[key] = true
		unique = append(unique, c)
	}

	return unique, duplicates
}
