package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MikeSquared-Agency/Bazaar/internal/config"
	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
)

// Precision is the number of decimal places fees are rounded to.
const Precision = 2

// Bracket charges Rate on the portion of an amount between the previous
// bracket's bound and UpTo. A nil UpTo means unbounded.
type Bracket struct {
	UpTo *decimal.Decimal
	Rate decimal.Decimal
}

// Schedule is a marginal-rate fee schedule.
type Schedule struct {
	Version  string
	Brackets []Bracket
}

// DefaultSchedule returns the marketplace's standard service fee tiers:
// 20% up to 500, 10% up to 10,000, 5% above.
func DefaultSchedule() Schedule {
	first := decimal.NewFromInt(500)
	second := decimal.NewFromInt(10000)
	return Schedule{
		Version: "2024-tiered-v1",
		Brackets: []Bracket{
			{UpTo: &first, Rate: decimal.RequireFromString("0.20")},
			{UpTo: &second, Rate: decimal.RequireFromString("0.10")},
			{Rate: decimal.RequireFromString("0.05")},
		},
	}
}

// FromConfig builds a Schedule from configured brackets. An up_to of 0
// marks the unbounded final bracket.
func FromConfig(cfg config.FeesConfig) Schedule {
	if len(cfg.Brackets) == 0 {
		s := DefaultSchedule()
		if cfg.Version != "" {
			s.Version = cfg.Version
		}
		return s
	}
	s := Schedule{Version: cfg.Version}
	for _, b := range cfg.Brackets {
		br := Bracket{Rate: decimal.NewFromFloat(b.Rate)}
		if b.UpTo > 0 {
			upTo := decimal.NewFromFloat(b.UpTo)
			br.UpTo = &upTo
		}
		s.Brackets = append(s.Brackets, br)
	}
	return s
}

// Validate checks that bounds ascend strictly, only the last bracket is
// unbounded and every rate lies in [0, 1].
func (s Schedule) Validate() error {
	if len(s.Brackets) == 0 {
		return fmt.Errorf("fee schedule has no brackets")
	}
	prev := decimal.Zero
	for i, b := range s.Brackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("bracket %d: rate %s outside [0,1]", i, b.Rate)
		}
		last := i == len(s.Brackets)-1
		if b.UpTo == nil {
			if !last {
				return fmt.Errorf("bracket %d: only the last bracket may be unbounded", i)
			}
			continue
		}
		if last {
			return fmt.Errorf("bracket %d: last bracket must be unbounded", i)
		}
		if !b.UpTo.GreaterThan(prev) {
			return fmt.Errorf("bracket %d: bound %s must exceed %s", i, b.UpTo, prev)
		}
		prev = *b.UpTo
	}
	return nil
}

// Quote is a fee estimate for a single amount.
type Quote struct {
	Amount          decimal.Decimal `json:"amount"`
	Fee             decimal.Decimal `json:"fee"`
	Net             decimal.Decimal `json:"net"`
	ScheduleVersion string          `json:"schedule_version"`
}

// Calculator computes service fees. It holds no mutable state and is safe
// for concurrent use.
type Calculator struct {
	schedule Schedule
}

func NewCalculator(s Schedule) (*Calculator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{schedule: s}, nil
}

// Default returns a Calculator over DefaultSchedule.
func Default() *Calculator {
	return &Calculator{schedule: DefaultSchedule()}
}

func (c *Calculator) ScheduleVersion() string {
	return c.schedule.Version
}

// Fee returns the marginal service fee for amount, rounded to Precision.
func (c *Calculator) Fee(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, bzerrors.InvalidAmount("amount must be positive, got %s", amount)
	}

	fee := decimal.Zero
	lower := decimal.Zero
	for _, b := range c.schedule.Brackets {
		upper := amount
		if b.UpTo != nil && b.UpTo.LessThan(amount) {
			upper = *b.UpTo
		}
		portion := upper.Sub(lower)
		if !portion.IsPositive() {
			break
		}
		fee = fee.Add(portion.Mul(b.Rate))
		if b.UpTo == nil || !b.UpTo.LessThan(amount) {
			break
		}
		lower = *b.UpTo
	}
	return fee.Round(Precision), nil
}

// Net returns amount minus its fee. Fee(a) + Net(a) == a exactly.
func (c *Calculator) Net(amount decimal.Decimal) (decimal.Decimal, error) {
	fee, err := c.Fee(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Sub(fee), nil
}

func (c *Calculator) Quote(amount decimal.Decimal) (Quote, error) {
	fee, err := c.Fee(amount)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Amount:          amount,
		Fee:             fee,
		Net:             amount.Sub(fee),
		ScheduleVersion: c.schedule.Version,
	}, nil
}
