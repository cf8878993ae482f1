package ranking

import (
	"sort"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/scoring"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

type ProposalSort string

const (
	ProposalSortMatch     ProposalSort = "match_score"
	ProposalSortSubmitted ProposalSort = "submitted_at"
	ProposalSortRateAsc   ProposalSort = "rate_asc"
	ProposalSortRateDesc  ProposalSort = "rate_desc"
)

// ProposalRequest ranks the proposals on one job for its client.
// FrontierOnly keeps proposals no other proposal beats on both match score
// and rate.
type ProposalRequest struct {
	Statuses     []store.ProposalStatus
	Sort         ProposalSort
	FrontierOnly bool
	Page         int
	PageSize     int
}

type ProposalItem struct {
	Proposal   *store.Proposal `json:"proposal"`
	OnFrontier bool            `json:"on_frontier"`
}

type ProposalResult struct {
	Items      []ProposalItem `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

// RankProposals orders a proposal pool. Drafts are never shown to a client.
func (e *Engine) RankProposals(pool []*store.Proposal, req ProposalRequest) (*ProposalResult, error) {
	key := req.Sort
	if key == "" {
		key = ProposalSortMatch
	}
	less, err := proposalOrder(key)
	if err != nil {
		return nil, err
	}
	page, size, err := e.pageBounds(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	kept := make([]*store.Proposal, 0, len(pool))
	for _, p := range pool {
		if p.Status == store.ProposalStatusDraft {
			continue
		}
		if len(req.Statuses) > 0 && !hasStatus(req.Statuses, p.Status) {
			continue
		}
		kept = append(kept, p)
	}

	frontier := frontierSet(kept)
	if req.FrontierOnly {
		onFrontier := kept[:0]
		for _, p := range kept {
			if frontier[p.ID.String()] {
				onFrontier = append(onFrontier, p)
			}
		}
		kept = onFrontier
	}
	sort.SliceStable(kept, func(a, b int) bool { return less(kept[a], kept[b]) })

	lo, hi := window(len(kept), page, size)
	items := make([]ProposalItem, 0, hi-lo)
	for _, p := range kept[lo:hi] {
		items = append(items, ProposalItem{Proposal: p, OnFrontier: frontier[p.ID.String()]})
	}
	return &ProposalResult{Items: items, Pagination: paginate(len(kept), page, size)}, nil
}

func frontierSet(ps []*store.Proposal) map[string]bool {
	candidates := make([]scoring.ParetoCandidate, 0, len(ps))
	for _, p := range ps {
		score := 0.0
		if p.MatchScore != nil {
			score = float64(*p.MatchScore)
		}
		rate, _ := p.ProposedRate.Float64()
		candidates = append(candidates, scoring.ParetoCandidate{
			ProposalID: p.ID.String(),
			MatchScore: score,
			Rate:       rate,
		})
	}
	out := make(map[string]bool, len(candidates))
	for _, c := range scoring.ComputeFrontier(candidates) {
		out[c.ProposalID] = true
	}
	return out
}

func proposalOrder(key ProposalSort) (func(a, b *store.Proposal) bool, error) {
	switch key {
	case ProposalSortMatch:
		return func(a, b *store.Proposal) bool {
			switch {
			case (a.MatchScore == nil) != (b.MatchScore == nil):
				return a.MatchScore != nil
			case a.MatchScore != nil && *a.MatchScore != *b.MatchScore:
				return *a.MatchScore > *b.MatchScore
			}
			return idLess(a.ID, b.ID)
		}, nil
	case ProposalSortSubmitted:
		return func(a, b *store.Proposal) bool {
			switch {
			case (a.SubmittedAt == nil) != (b.SubmittedAt == nil):
				return a.SubmittedAt != nil
			case a.SubmittedAt != nil && !a.SubmittedAt.Equal(*b.SubmittedAt):
				return a.SubmittedAt.Before(*b.SubmittedAt)
			}
			return idLess(a.ID, b.ID)
		}, nil
	case ProposalSortRateAsc, ProposalSortRateDesc:
		desc := key == ProposalSortRateDesc
		return func(a, b *store.Proposal) bool {
			if !a.ProposedRate.Equal(b.ProposedRate) {
				if desc {
					return a.ProposedRate.GreaterThan(b.ProposedRate)
				}
				return a.ProposedRate.LessThan(b.ProposedRate)
			}
			return idLess(a.ID, b.ID)
		}, nil
	}
	return nil, bzerrors.InvalidInput("unknown proposal sort %q", key)
}

func hasStatus(statuses []store.ProposalStatus, s store.ProposalStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
