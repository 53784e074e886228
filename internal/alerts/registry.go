package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"stock-price-alerts/pkg/models"
)

var (
	ErrRuleNotFound = errors.New("alert rule not found")
	ErrRuleExists   = errors.New("alert rule already exists")
)

// RuleStore persists alert rules so the registry survives restarts. SaveRule
// inserts or replaces. DeleteRule of an unknown id is not an error.
type RuleStore interface {
	SaveRule(ctx context.Context, rule *models.AlertRule) error
	DeleteRule(ctx context.Context, id string) error
	LoadRules(ctx context.Context) ([]*models.AlertRule, error)
}

type RegistryOption func(*Registry)

func WithStore(store RuleStore) RegistryOption {
	return func(r *Registry) {
		r.store = store
	}
}

func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type Registry struct {
	rules       map[string]*models.AlertRule
	symbolIndex map[string][]string
	mu          sync.RWMutex

	store        RuleStore
	storeTimeout time.Duration
	logger       *zap.Logger
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rules:        make(map[string]*models.AlertRule),
		symbolIndex:  make(map[string][]string),
		storeTimeout: 5 * time.Second,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load restores persisted rules. Rules that no longer validate are skipped.
func (r *Registry) Load(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}

	rules, err := r.store.LoadRules(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			r.logger.Warn("Skipping invalid stored rule", zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		rule.Symbol = models.NormalizeSymbol(rule.Symbol)
		r.rules[rule.ID] = rule
		r.addToSymbolIndex(rule.Symbol, rule.ID)
		loaded++
	}

	return loaded, nil
}

func (r *Registry) Add(rule *models.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.ID]; exists {
		return ErrRuleExists
	}

	stored := *rule
	stored.Symbol = models.NormalizeSymbol(rule.Symbol)

	if r.store != nil {
		ctx, cancel := r.storeContext()
		defer cancel()
		if err := r.store.SaveRule(ctx, &stored); err != nil {
			return err
		}
	}

	r.rules[stored.ID] = &stored
	r.addToSymbolIndex(stored.Symbol, stored.ID)

	return nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, exists := r.rules[id]
	if !exists {
		return ErrRuleNotFound
	}

	if r.store != nil {
		ctx, cancel := r.storeContext()
		defer cancel()
		if err := r.store.DeleteRule(ctx, id); err != nil {
			return err
		}
	}

	r.removeFromSymbolIndex(rule.Symbol, id)
	delete(r.rules, id)

	return nil
}

func (r *Registry) Get(id string) (*models.AlertRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, exists := r.rules[id]
	if !exists {
		return nil, ErrRuleNotFound
	}

	ruleCopy := *rule
	return &ruleCopy, nil
}

func (r *Registry) All() []*models.AlertRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*models.AlertRule, 0, len(r.rules))
	for _, rule := range r.rules {
		ruleCopy := *rule
		rules = append(rules, &ruleCopy)
	}

	return rules
}

// List returns the rules for a symbol in insertion order.
func (r *Registry) List(symbol string) []*models.AlertRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, exists := r.symbolIndex[models.NormalizeSymbol(symbol)]
	if !exists {
		return []*models.AlertRule{}
	}

	rules := make([]*models.AlertRule, 0, len(ids))
	for _, id := range ids {
		if rule, exists := r.rules[id]; exists {
			ruleCopy := *rule
			rules = append(rules, &ruleCopy)
		}
	}

	return rules
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.symbolIndex))
	for symbol := range r.symbolIndex {
		symbols = append(symbols, symbol)
	}

	return symbols
}

// Rearm arms a rule and clears a user pause.
func (r *Registry) Rearm(id string) error {
	_, err := r.update(id, true, func(rule *models.AlertRule) bool {
		if rule.Armed && !rule.Paused {
			return false
		}
		rule.Armed, rule.Paused = true, false
		return true
	})
	return err
}

// Disarm pauses a rule. Unlike a fired rule, a paused rule is not rearmed by
// price movement; only Rearm resumes it.
func (r *Registry) Disarm(id string) error {
	_, err := r.update(id, true, func(rule *models.AlertRule) bool {
		if rule.Paused {
			return false
		}
		rule.Armed, rule.Paused = false, true
		return true
	})
	return err
}

// Fire disarms an armed rule and records when it fired. It reports false when
// the rule was already disarmed, so a crossing is consumed at most once.
func (r *Registry) Fire(id string, at time.Time) (bool, error) {
	return r.update(id, false, func(rule *models.AlertRule) bool {
		if !rule.Armed {
			return false
		}
		rule.Armed = false
		rule.LastFired = &at
		return true
	})
}

// rearmFired arms a rule that fired, leaving paused rules alone.
func (r *Registry) rearmFired(id string) (bool, error) {
	return r.update(id, false, func(rule *models.AlertRule) bool {
		if rule.Armed || rule.Paused {
			return false
		}
		rule.Armed = true
		return true
	})
}

// update applies mutate to a copy of the rule and persists it. A strict update
// fails when the store does; otherwise the store error is logged and the new
// state is kept in memory.
func (r *Registry) update(id string, strict bool, mutate func(*models.AlertRule) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, exists := r.rules[id]
	if !exists {
		return false, ErrRuleNotFound
	}

	updated := *rule
	if !mutate(&updated) {
		return false, nil
	}

	if r.store != nil {
		ctx, cancel := r.storeContext()
		defer cancel()
		if err := r.store.SaveRule(ctx, &updated); err != nil {
			if strict {
				return false, err
			}
			r.logger.Error("Failed to persist rule state", zap.String("rule_id", id), zap.Error(err))
		}
	}

	*rule = updated
	return true, nil
}

func (r *Registry) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.storeTimeout)
}

func (r *Registry) addToSymbolIndex(symbol, id string) {
	for _, existing := range r.symbolIndex[symbol] {
		if existing == id {
			return
		}
	}
	r.symbolIndex[symbol] = append(r.symbolIndex[symbol], id)
}

func (r *Registry) removeFromSymbolIndex(symbol, id string) {
	ids, exists := r.symbolIndex[symbol]
	if !exists {
		return
	}

	for i, existing := range ids {
		if existing == id {
			r.symbolIndex[symbol] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	if len(r.symbolIndex[symbol]) == 0 {
		delete(r.symbolIndex, symbol)
	}
}
