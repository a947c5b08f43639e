package domain

import "context"

// Transaction exposes the state-mutation primitives a persistence
// implementation must support within one atomic scope. Append operations
// never fail: all admissibility checks happen upstream in the coordinator.
type Transaction interface {
	Snapshot() TransactionView

	Paused() bool
	SetPaused(paused bool)

	HasRole(role Role, id Identity) bool
	Grant(role Role, id Identity)
	Revoke(role Role, id Identity)

	LastSubmission(id Identity) (uint64, bool)
	TouchCooldown(id Identity, now uint64)

	HasContentHash(hash string) bool
	AddContentHash(hash string)

	AppendReading(r Reading) Reading
	AppendCropEvent(e CropEvent) CropEvent
	AppendStage(s SupplyChainStage) SupplyChainStage
}

// TransactionView provides read-only access to ledger state. Views obtained
// from PersistentStore.View observe committed state; a view obtained from
// Transaction.Snapshot observes that transaction's pending writes.
type TransactionView interface {
	Paused() bool
	HasRole(role Role, id Identity) bool
	LastSubmission(id Identity) (uint64, bool)

	Reading(id uint64) (Reading, bool)
	CropEvent(id uint64) (CropEvent, bool)
	Stage(id uint64) (SupplyChainStage, bool)

	ReadingsByFarm(farmID uint64) []uint64
	CropEventsByFarm(farmID uint64) []uint64
	StagesByProduct(productID uint64) []uint64

	TotalReadings() int
	TotalCropEvents() int
	TotalStages() int
}

// PersistentStore is a minimal abstraction over durable backends. A failed
// transaction leaves every piece of committed state untouched.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
}
