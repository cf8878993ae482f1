package scoring

// ParetoCandidate is a proposal seen from the client's side: a higher match
// score is better, a lower rate is better.
type ParetoCandidate struct {
	ProposalID string  `json:"proposal_id"`
	MatchScore float64 `json:"match_score"`
	Rate       float64 `json:"rate"`
}

// ComputeFrontier returns the candidates no other candidate dominates, in
// input order. A candidate is dominated if another has a match score at
// least as high and a rate at least as low, and is strictly better on one.
// O(n^2) dominance check; proposal pools per job are small.
func ComputeFrontier(candidates []ParetoCandidate) []ParetoCandidate {
	if len(candidates) <= 1 {
		return candidates
	}

	var frontier []ParetoCandidate
	for i := range candidates {
		dominated := false
		for j := range candidates {
			if i == j {
				continue
			}
			if dominates(candidates[j], candidates[i]) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, candidates[i])
		}
	}
	return frontier
}

// dominates returns true if a dominates b.
func dominates(a, b ParetoCandidate) bool {
	if a.MatchScore < b.MatchScore || a.Rate > b.Rate {
		return false
	}
	return a.MatchScore > b.MatchScore || a.Rate < b.Rate
}
