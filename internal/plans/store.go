// Package plans owns savings plan records and the append-only transaction ledger.
package plans

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	clierr "github.com/ggonzalez94/savings-agent/internal/errors"
	"github.com/ggonzalez94/savings-agent/internal/model"
	"github.com/rs/zerolog"
)

const (
	collectionPlans        = "plans"
	collectionTransactions = "transactions"
)

// Backend persists whole collections.
type Backend interface {
	Load(name string, out any) (bool, error)
	Save(name string, v any) error
}

type CreateParams struct {
	UserAddress       string
	Goal              string
	Timeline          string
	RiskLevel         string
	Allocation        model.Allocation
	DepositAmountUSDC float64
}

// Update carries the fields a caller may change; nil fields are left untouched.
type Update struct {
	Status           *model.PlanStatus
	LastRebalancedAt *time.Time
	LastHarvestedAt  *time.Time
}

type Store struct {
	mu    sync.RWMutex
	db    Backend
	log   zerolog.Logger
	now   func() time.Time
	plans []model.SavingsPlan
	txs   []model.TransactionRecord
}

// Open loads both collections. Unreadable collections start empty.
func Open(db Backend, log zerolog.Logger) *Store {
	s := &Store{db: db, log: log, now: time.Now}
	s.plans = loadCollection[model.SavingsPlan](db, collectionPlans, log)
	s.txs = loadCollection[model.TransactionRecord](db, collectionTransactions, log)
	return s
}

func loadCollection[T any](db Backend, name string, log zerolog.Logger) []T {
	var items []T
	if _, err := db.Load(name, &items); err != nil {
		log.Warn().Err(err).Str("collection", name).Msg("resetting unreadable collection")
		return []T{}
	}
	if items == nil {
		items = []T{}
	}
	return items
}

func (s *Store) Create(p CreateParams) (model.SavingsPlan, error) {
	id, err := newPlanID()
	if err != nil {
		return model.SavingsPlan{}, clierr.Wrap(clierr.CodeInternal, "generate plan id", err)
	}
	plan := model.SavingsPlan{
		PlanID:            id,
		UserAddress:       strings.TrimSpace(p.UserAddress),
		Goal:              p.Goal,
		Timeline:          p.Timeline,
		RiskLevel:         p.RiskLevel,
		Allocation:        p.Allocation,
		DepositAmountUSDC: p.DepositAmountUSDC,
		Status:            model.PlanStatusCreated,
		CreatedAt:         s.now().UTC(),
		Transactions:      []string{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(clonePlans(s.plans), plan)
	if err := s.save(collectionPlans, next); err != nil {
		return model.SavingsPlan{}, err
	}
	s.plans = next
	return clonePlan(plan), nil
}

func (s *Store) Get(id string) (model.SavingsPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return clonePlan(s.plans[i]), true
	}
	return model.SavingsPlan{}, false
}

func (s *Store) All() []model.SavingsPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePlans(s.plans)
}

// Active returns plans the scheduler should manage: created or active.
func (s *Store) Active() []model.SavingsPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SavingsPlan, 0, len(s.plans))
	for _, p := range s.plans {
		if p.Status == model.PlanStatusActive || p.Status == model.PlanStatusCreated {
			out = append(out, clonePlan(p))
		}
	}
	return out
}

// Update applies u to the plan. Unknown ids are ignored.
func (s *Store) Update(id string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	next := clonePlans(s.plans)
	if u.Status != nil {
		next[i].Status = *u.Status
	}
	if u.LastRebalancedAt != nil {
		t := u.LastRebalancedAt.UTC()
		next[i].LastRebalancedAt = &t
	}
	if u.LastHarvestedAt != nil {
		t := u.LastHarvestedAt.UTC()
		next[i].LastHarvestedAt = &t
	}
	if err := s.save(collectionPlans, next); err != nil {
		return err
	}
	s.plans = next
	return nil
}

// AppendTransaction links a transaction hash to the plan. Unknown ids are ignored.
func (s *Store) AppendTransaction(id, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	next := clonePlans(s.plans)
	next[i].Transactions = append(next[i].Transactions, txHash)
	if err := s.save(collectionPlans, next); err != nil {
		return err
	}
	s.plans = next
	return nil
}

func (s *Store) RecordTransaction(rec model.TransactionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]model.TransactionRecord, len(s.txs), len(s.txs)+1)
	copy(next, s.txs)
	next = append(next, rec)
	if err := s.save(collectionTransactions, next); err != nil {
		return err
	}
	s.txs = next
	return nil
}

// Recent returns the last n transactions in recording order.
func (s *Store) Recent(n int) []model.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.txs) > n {
		start = len(s.txs) - n
	}
	return append([]model.TransactionRecord{}, s.txs[start:]...)
}

func (s *Store) ForPlan(id string) []model.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.TransactionRecord{}
	for _, tx := range s.txs {
		if tx.PlanID == id {
			out = append(out, tx)
		}
	}
	return out
}

func (s *Store) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

func (s *Store) save(name string, v any) error {
	if err := s.db.Save(name, v); err != nil {
		return clierr.Wrap(clierr.CodePersistence, fmt.Sprintf("persist %s", name), err)
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.plans {
		if s.plans[i].PlanID == id {
			return i
		}
	}
	return -1
}

func newPlanID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "plan_" + hex.EncodeToString(buf), nil
}

func clonePlans(in []model.SavingsPlan) []model.SavingsPlan {
	out := make([]model.SavingsPlan, len(in), len(in)+1)
	for i := range in {
		out[i] = clonePlan(in[i])
	}
	return out
}

func clonePlan(p model.SavingsPlan) model.SavingsPlan {
	p.Transactions = append([]string{}, p.Transactions...)
	if p.LastRebalancedAt != nil {
		t := *p.LastRebalancedAt
		p.LastRebalancedAt = &t
	}
	if p.LastHarvestedAt != nil {
		t := *p.LastHarvestedAt
		p.LastHarvestedAt = &t
	}
	return p
}
