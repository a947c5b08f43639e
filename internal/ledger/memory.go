package ledger

import (
	"context"
	"sync"

	"agroledger/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*MemoryStore)(nil)

// MemoryStore is the in-memory transactional ledger store. Every external
// call runs as a discrete, totally ordered transaction against a cloned
// state that is swapped in only on success, which makes rollback mechanical:
// an aborted transaction simply discards its clone.
type MemoryStore struct {
	mu    sync.RWMutex
	state ledgerState
}

// NewMemoryStore constructs an empty in-memory store. The deploying
// identity is seeded with the Administrator role so that role
// administration is possible from the first transaction.
func NewMemoryStore(deployer domain.Identity) *MemoryStore {
	state := newLedgerState()
	state.roles[deployer] = map[domain.Role]struct{}{domain.RoleAdministrator: {}}
	return &MemoryStore{state: state}
}

// RunInTransaction executes fn against a transactional copy of the state.
// The copy becomes the committed state only when fn returns nil.
func (s *MemoryStore) RunInTransaction(_ context.Context, fn func(domain.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of committed state.
func (s *MemoryStore) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(memView{state: &s.state})
}

// ExportState returns a serializable snapshot of the committed state.
func (s *MemoryStore) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.export()
}

// ImportState replaces the committed state with the snapshot contents,
// rebuilding the secondary indices. Used when hydrating from a durable
// backend.
func (s *MemoryStore) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(snap)
}

type memTx struct {
	state ledgerState
}

func (tx *memTx) Snapshot() domain.TransactionView { return memView{state: &tx.state} }

func (tx *memTx) Paused() bool          { return tx.state.paused }
func (tx *memTx) SetPaused(paused bool) { tx.state.paused = paused }

func (tx *memTx) HasRole(role domain.Role, id domain.Identity) bool {
	return tx.state.hasRole(role, id)
}

func (tx *memTx) Grant(role domain.Role, id domain.Identity) {
	grants, ok := tx.state.roles[id]
	if !ok {
		grants = make(map[domain.Role]struct{})
		tx.state.roles[id] = grants
	}
	grants[role] = struct{}{}
}

func (tx *memTx) Revoke(role domain.Role, id domain.Identity) {
	delete(tx.state.roles[id], role)
}

func (tx *memTx) LastSubmission(id domain.Identity) (uint64, bool) {
	last, ok := tx.state.cooldowns[id]
	return last, ok
}

func (tx *memTx) TouchCooldown(id domain.Identity, now uint64) {
	tx.state.cooldowns[id] = now
}

func (tx *memTx) HasContentHash(hash string) bool {
	_, ok := tx.state.hashes[hash]
	return ok
}

func (tx *memTx) AddContentHash(hash string) {
	tx.state.hashes[hash] = struct{}{}
}

func (tx *memTx) AppendReading(r domain.Reading) domain.Reading {
	r.ID = uint64(len(tx.state.readings))
	tx.state.readings = append(tx.state.readings, r)
	tx.state.readingsByFarm[r.FarmID] = append(tx.state.readingsByFarm[r.FarmID], r.ID)
	return r
}

func (tx *memTx) AppendCropEvent(e domain.CropEvent) domain.CropEvent {
	e.ID = uint64(len(tx.state.events))
	tx.state.events = append(tx.state.events, e)
	tx.state.eventsByFarm[e.FarmID] = append(tx.state.eventsByFarm[e.FarmID], e.ID)
	return e
}

func (tx *memTx) AppendStage(st domain.SupplyChainStage) domain.SupplyChainStage {
	st.ID = uint64(len(tx.state.stages))
	tx.state.stages = append(tx.state.stages, st)
	tx.state.stagesByProd[st.ProductID] = append(tx.state.stagesByProd[st.ProductID], st.ID)
	return st
}

type memView struct {
	state *ledgerState
}

func (v memView) Paused() bool { return v.state.paused }

func (v memView) HasRole(role domain.Role, id domain.Identity) bool {
	return v.state.hasRole(role, id)
}

func (v memView) LastSubmission(id domain.Identity) (uint64, bool) {
	last, ok := v.state.cooldowns[id]
	return last, ok
}

func (v memView) Reading(id uint64) (domain.Reading, bool) {
	if id >= uint64(len(v.state.readings)) {
		return domain.Reading{}, false
	}
	return v.state.readings[id], true
}

func (v memView) CropEvent(id uint64) (domain.CropEvent, bool) {
	if id >= uint64(len(v.state.events)) {
		return domain.CropEvent{}, false
	}
	return v.state.events[id], true
}

func (v memView) Stage(id uint64) (domain.SupplyChainStage, bool) {
	if id >= uint64(len(v.state.stages)) {
		return domain.SupplyChainStage{}, false
	}
	return v.state.stages[id], true
}

func (v memView) ReadingsByFarm(farmID uint64) []uint64 {
	return append([]uint64(nil), v.state.readingsByFarm[farmID]...)
}

func (v memView) CropEventsByFarm(farmID uint64) []uint64 {
	return append([]uint64(nil), v.state.eventsByFarm[farmID]...)
}

func (v memView) StagesByProduct(productID uint64) []uint64 {
	return append([]uint64(nil), v.state.stagesByProd[productID]...)
}

func (v memView) TotalReadings() int   { return len(v.state.readings) }
func (v memView) TotalCropEvents() int { return len(v.state.events) }
func (v memView) TotalStages() int     { return len(v.state.stages) }
