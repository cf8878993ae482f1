package ranking

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Bazaar/internal/config"
	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
	"github.com/MikeSquared-Agency/Bazaar/internal/metrics"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

type SortKey string

const (
	SortPostedAt   SortKey = "posted_at"
	SortMatchScore SortKey = "match_score"
	SortBudgetDesc SortKey = "budget_max_desc"
	SortBudgetAsc  SortKey = "budget_max_asc"
)

// Request describes one search. Scores carries match scores for the
// requesting freelancer; it is required for SortMatchScore.
type Request struct {
	Filters  Filters
	Sort     SortKey
	Page     int
	PageSize int
	Scores   map[uuid.UUID]int
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// Item is one ranked job, annotated with the freelancer's match score when known.
type Item struct {
	Job        *store.JobPosting `json:"job"`
	MatchScore *int              `json:"match_score,omitempty"`
}

type Result struct {
	Items      []Item     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Engine filters, orders and pages job pools. It holds no per-request state
// and is safe for concurrent use.
type Engine struct {
	defaultPageSize int
	maxPageSize     int
	metrics         *metrics.Metrics
	now             func() time.Time
}

func NewEngine(cfg config.SearchConfig, m *metrics.Metrics) *Engine {
	e := &Engine{
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
		metrics:         m,
		now:             time.Now,
	}
	if e.maxPageSize <= 0 {
		e.maxPageSize = 100
	}
	if e.defaultPageSize <= 0 || e.defaultPageSize > e.maxPageSize {
		e.defaultPageSize = min(20, e.maxPageSize)
	}
	return e
}

// Search applies the filters, orders the survivors and returns the requested
// page. Ordering is total (ties fall back to id), so a page boundary is
// stable for a given pool.
func (e *Engine) Search(pool []*store.JobPosting, req Request) (*Result, error) {
	start := e.now()
	defer func() { e.metrics.ObserveSearch(e.now().Sub(start)) }()

	if err := req.Filters.Validate(); err != nil {
		return nil, err
	}
	key := req.Sort
	if key == "" {
		key = SortPostedAt
	}
	less, err := jobOrder(key, req.Scores)
	if err != nil {
		return nil, err
	}
	page, size, err := e.pageBounds(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	now := e.now()
	kept := make([]*store.JobPosting, 0, len(pool))
	for _, j := range pool {
		if req.Filters.Matches(j, now) {
			kept = append(kept, j)
		}
	}
	sort.SliceStable(kept, func(a, b int) bool { return less(kept[a], kept[b]) })

	lo, hi := window(len(kept), page, size)
	items := make([]Item, 0, hi-lo)
	for _, j := range kept[lo:hi] {
		item := Item{Job: j}
		if score, ok := req.Scores[j.ID]; ok {
			s := score
			item.MatchScore = &s
		}
		items = append(items, item)
	}
	return &Result{Items: items, Pagination: paginate(len(kept), page, size)}, nil
}

func (e *Engine) pageBounds(page, size int) (int, int, error) {
	if page < 0 || size < 0 {
		return 0, 0, bzerrors.InvalidInput("page and page_size must not be negative")
	}
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = e.defaultPageSize
	}
	if size > e.maxPageSize {
		size = e.maxPageSize
	}
	return page, size, nil
}

func jobOrder(key SortKey, scores map[uuid.UUID]int) (func(a, b *store.JobPosting) bool, error) {
	switch key {
	case SortPostedAt:
		return func(a, b *store.JobPosting) bool {
			switch {
			case a.PostedAt == nil && b.PostedAt == nil:
			case a.PostedAt == nil:
				return false
			case b.PostedAt == nil:
				return true
			case !a.PostedAt.Equal(*b.PostedAt):
				return a.PostedAt.After(*b.PostedAt)
			}
			return idLess(a.ID, b.ID)
		}, nil
	case SortMatchScore:
		if scores == nil {
			return nil, bzerrors.InvalidInput("sorting by match score needs a freelancer")
		}
		return func(a, b *store.JobPosting) bool {
			sa, oka := scores[a.ID]
			sb, okb := scores[b.ID]
			switch {
			case oka != okb:
				return oka
			case sa != sb:
				return sa > sb
			}
			return idLess(a.ID, b.ID)
		}, nil
	case SortBudgetDesc, SortBudgetAsc:
		desc := key == SortBudgetDesc
		return func(a, b *store.JobPosting) bool {
			ma, mb := a.Budget.Max, b.Budget.Max
			switch {
			case ma == nil && mb == nil:
			case ma == nil:
				return false
			case mb == nil:
				return true
			case !ma.Equal(*mb):
				if desc {
					return ma.GreaterThan(*mb)
				}
				return ma.LessThan(*mb)
			}
			return idLess(a.ID, b.ID)
		}, nil
	}
	return nil, bzerrors.InvalidInput("unknown sort %q", key)
}

func idLess(a, b uuid.UUID) bool {
	return a.String() < b.String()
}

// window returns the [lo, hi) slice bounds of page within total items.
func window(total, page, size int) (int, int) {
	lo := (page - 1) * size
	if lo > total {
		lo = total
	}
	hi := lo + size
	if hi > total {
		hi = total
	}
	return lo, hi
}

func paginate(total, page, size int) Pagination {
	pages := 0
	if total > 0 {
		pages = (total + size - 1) / size
	}
	return Pagination{Page: page, PageSize: size, TotalCount: total, TotalPages: pages}
}
