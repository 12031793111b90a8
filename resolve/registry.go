package resolve

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/alanbriolat/video-fetcher/generic"
)

var (
	ErrDuplicateStrategy = errors.New("duplicate strategy name")
	ErrInvalidStrategy   = errors.New("invalid strategy")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	// ErrNoCandidate is the per-strategy miss recorded in the error returned by StrategyRegistry.Match.
	ErrNoCandidate = errors.New("no candidate")
)

var (
	PriorityHighest int16 = math.MinInt16
	PriorityDefault int16 = 0
	PriorityLowest  int16 = math.MaxInt16
)

// An ExtractFunc looks for a locator candidate in a fetched page. It must not do any I/O.
type ExtractFunc = func(*Input) generic.Option[string]

// A Strategy is one rule of the extraction cascade.
type Strategy struct {
	Name    string
	Extract ExtractFunc
	// Priority of the strategy, lower (including negative) means trying earlier.
	Priority int16
}

func (s Strategy) WithPriority(priority int16) Strategy {
	s.Priority = priority
	return s
}

// A Candidate is the raw result of the first Strategy that matched.
type Candidate struct {
	StrategyName string
	Value        string
}

// A StrategyRegistry holds Strategy instances in priority order. Strategies of equal priority keep the order they
// were added in.
type StrategyRegistry struct {
	strategies  []*Strategy
	strategyMap map[string]*Strategy
}

// Add registers a Strategy. Strategy.Name and Strategy.Extract must be set, and Strategy.Name must be unique.
func (r *StrategyRegistry) Add(s Strategy) error {
	if r.strategyMap == nil {
		r.strategyMap = make(map[string]*Strategy)
	}
	if s.Name == "" || s.Extract == nil {
		return ErrInvalidStrategy
	}
	if _, ok := r.strategyMap[s.Name]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateStrategy, s.Name)
	}
	r.strategyMap[s.Name] = &s
	r.strategies = append(r.strategies, r.strategyMap[s.Name])
	r.sortByPriority()
	return nil
}

// MustAdd wraps Add but panics if there is an error.
func (r *StrategyRegistry) MustAdd(s Strategy) {
	generic.Unwrap_(r.Add(s))
}

// GetPriority gets the priority of the named Strategy.
func (r *StrategyRegistry) GetPriority(name string) (int16, error) {
	if s, ok := r.strategyMap[name]; ok {
		return s.Priority, nil
	} else {
		return PriorityDefault, ErrUnknownStrategy
	}
}

// SetPriority moves a named Strategy within the cascade.
func (r *StrategyRegistry) SetPriority(name string, priority int16) error {
	if s, ok := r.strategyMap[name]; ok {
		s.Priority = priority
		r.sortByPriority()
		return nil
	} else {
		return ErrUnknownStrategy
	}
}

// List returns the names of registered strategies in priority order.
func (r *StrategyRegistry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name)
	}
	return names
}

// Match tries each Strategy in priority order, returning the first candidate found. If none match, the error
// collects a miss for every strategy tried.
func (r *StrategyRegistry) Match(in *Input) (*Candidate, error) {
	var result error
	for _, s := range r.strategies {
		if value, ok := s.Extract(in).Get(); ok && value != "" {
			return &Candidate{StrategyName: s.Name, Value: value}, nil
		}
		result = multierror.Append(result, multierror.Prefix(ErrNoCandidate, fmt.Sprintf("[%v]", s.Name)))
	}
	if result == nil {
		result = ErrNoCandidate
	}
	return nil, result
}

func (r *StrategyRegistry) sortByPriority() {
	sort.SliceStable(r.strategies, func(i, j int) bool {
		return r.strategies[i].Priority < r.strategies[j].Priority
	})
}
