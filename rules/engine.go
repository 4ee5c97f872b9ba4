package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/miethe/dealbrain/formula"
	"github.com/miethe/dealbrain/registry"
)

// Engine drives ruleset evaluation over listing contexts.
//
// Formula expressions are compiled once and cached keyed by expression text;
// the cache is guarded by an RWMutex so concurrent evaluations share it.
// Evaluation itself is a pure function of (ruleset snapshot, listing
// context): the engine performs no I/O and reads no clock inside a pass.
type Engine struct {
	registry registry.Registry
	store    Store
	cache    RulesetCache
	programs map[string]*formula.Program
	mu       sync.RWMutex
}

// NewEngine creates an engine over the given registry and store, compiling
// every formula in the active ruleset up front so evaluation never pays a
// compile and never sees a compile failure.
func NewEngine(reg registry.Registry, store Store) (*Engine, error) {
	if err := registry.Validate(reg); err != nil {
		return nil, fmt.Errorf("invalid field registry: %w", err)
	}

	e := &Engine{
		registry: reg,
		store:    store,
		cache:    NewInMemoryRulesetCache(DefaultCacheConfig()),
		programs: make(map[string]*formula.Program),
	}

	if err := e.Reload(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load active ruleset: %w", err)
	}

	return e, nil
}

// Registry returns the field registry the engine validates against
func (e *Engine) Registry() registry.Registry {
	return e.registry
}

// Reload refetches the active ruleset from the store, compiles its formulas,
// and refreshes the cache. A store without an active ruleset is not an
// error; the engine simply evaluates nothing until one appears.
func (e *Engine) Reload(ctx context.Context) error {
	rs, err := e.store.ActiveRuleset(ctx)
	if err != nil {
		if errors.Is(err, ErrRulesetNotFound) {
			e.cache.Invalidate()
			return nil
		}
		return err
	}

	if err := e.compileRuleset(rs); err != nil {
		return err
	}

	e.cache.Set(rs)
	return nil
}

// Invalidate drops the cached ruleset snapshot, forcing a store reload on
// the next evaluation. Wired to the version service so mutations take
// effect without restarting the engine.
func (e *Engine) Invalidate() {
	e.cache.Invalidate()
}

// compileRuleset compiles every formula expression the ruleset references
func (e *Engine) compileRuleset(rs *Ruleset) error {
	for _, group := range rs.Groups {
		for _, rule := range group.Rules {
			if err := e.compileRule(rule); err != nil {
				return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
			}
		}
	}
	return nil
}

func (e *Engine) compileRule(r *Rule) error {
	for _, expr := range collectExpressions(r.Conditions, r.Actions) {
		if _, err := e.program(expr); err != nil {
			return err
		}
	}
	return nil
}

// collectExpressions gathers every formula expression in a rule definition
func collectExpressions(cond *ConditionNode, actions []Action) []string {
	var exprs []string

	var walk func(n *ConditionNode)
	walk = func(n *ConditionNode) {
		if n == nil {
			return
		}
		if n.Expression != "" {
			exprs = append(exprs, n.Expression)
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(cond)

	for _, a := range actions {
		if a.Type == ActionFormula && a.Expression != "" {
			exprs = append(exprs, a.Expression)
		}
	}

	return exprs
}

// program returns the compiled program for an expression, compiling and
// caching it on first use. Expressions are validated at rule-save time, so
// a compile failure here means the stored rule predates validation.
func (e *Engine) program(expr string) (*formula.Program, error) {
	e.mu.RLock()
	prog, exists := e.programs[expr]
	e.mu.RUnlock()
	if exists {
		return prog, nil
	}

	prog, err := formula.Compile(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[expr] = prog
	e.mu.Unlock()

	return prog, nil
}

// EvaluateListing evaluates the active ruleset against one listing,
// resolving the snapshot through the cache with a store fallback.
func (e *Engine) EvaluateListing(ctx context.Context, listing Context) (*Evaluation, error) {
	rs := e.cache.Get()

	if rs == nil {
		var err error
		rs, err = e.store.ActiveRuleset(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.compileRuleset(rs); err != nil {
			return nil, err
		}
		e.cache.Set(rs)
	}

	return e.Evaluate(rs, listing), nil
}

// Evaluate runs one full ruleset pass over one listing context.
//
// Groups and rules are walked in ascending priority order; inactive groups
// and rules are skipped entirely. Each matched rule appends one ledger entry
// and moves the running price, which is clamped at a floor of 0 after every
// action application. The clamp is reported as a diagnostic the first time
// it triggers in a pass, never silently.
func (e *Engine) Evaluate(rs *Ruleset, listing Context) *Evaluation {
	eval := &Evaluation{}

	base, ok := listing.BasePrice()
	if !ok {
		eval.Diagnostics = append(eval.Diagnostics, "listing.price missing from context, evaluating from 0")
	}
	eval.BasePrice = base
	running := base

	for _, group := range sortedGroups(rs) {
		if !group.Active {
			continue
		}

		for _, rule := range sortedRules(group) {
			if !rule.Active || rule.Deleted {
				continue
			}

			trace := &Trace{}
			matched := evalNode(rule.Conditions, listing, e.lookup, trace)
			eval.Diagnostics = append(eval.Diagnostics, trace.Diagnostics...)
			if !matched {
				continue
			}

			var ruleDelta float64
			for _, action := range rule.Actions {
				prog := e.actionProgram(action)
				delta, diags := applyAction(action, prog, listing, running)
				eval.Diagnostics = append(eval.Diagnostics, diags...)

				ruleDelta += delta
				running += delta
				if running < 0 {
					running = 0
					if !eval.Clamped {
						eval.Clamped = true
						eval.Diagnostics = append(eval.Diagnostics,
							fmt.Sprintf("adjusted price clamped at 0 by rule %q", rule.Name))
					}
				}
			}

			eval.Ledger = append(eval.Ledger, LedgerEntry{
				RuleID:     rule.ID,
				RuleName:   rule.Name,
				GroupName:  group.Name,
				Matched:    true,
				Delta:      ruleDelta,
				PriceAfter: running,
			})
		}
	}

	eval.AdjustedPrice = running
	return eval
}

// lookup adapts the program cache to the condition evaluator
func (e *Engine) lookup(expr string) (*formula.Program, error) {
	return e.program(expr)
}

// actionProgram resolves the compiled program for a formula action, nil for
// other action types or on a (validated-away) compile failure.
func (e *Engine) actionProgram(a Action) *formula.Program {
	if a.Type != ActionFormula || a.Expression == "" {
		return nil
	}
	prog, err := e.program(a.Expression)
	if err != nil {
		return nil
	}
	return prog
}

// sortedGroups returns the ruleset's groups in ascending priority order.
// The input slice is not mutated; evaluation must not touch the snapshot.
func sortedGroups(rs *Ruleset) []*RuleGroup {
	groups := make([]*RuleGroup, len(rs.Groups))
	copy(groups, rs.Groups)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Priority < groups[j].Priority })
	return groups
}

func sortedRules(g *RuleGroup) []*Rule {
	rules := make([]*Rule, len(g.Rules))
	copy(rules, g.Rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return rules
}
