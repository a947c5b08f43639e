package ledger

import (
	"agroledger/pkg/domain"
)

// ledgerState is the single shared mutable state of the ledger: the three
// append-only sequences, their secondary indices, the role relation, the
// per-device cooldown map, the duplicate-hash set, and the pause flag.
// Transactions operate on a clone and swap it in on commit, so a failed
// transaction leaves the committed value untouched.
type ledgerState struct {
	readings []domain.Reading
	events   []domain.CropEvent
	stages   []domain.SupplyChainStage

	readingsByFarm map[uint64][]uint64
	eventsByFarm   map[uint64][]uint64
	stagesByProd   map[uint64][]uint64

	roles     map[domain.Identity]map[domain.Role]struct{}
	cooldowns map[domain.Identity]uint64
	hashes    map[string]struct{}
	paused    bool
}

func newLedgerState() ledgerState {
	return ledgerState{
		readingsByFarm: make(map[uint64][]uint64),
		eventsByFarm:   make(map[uint64][]uint64),
		stagesByProd:   make(map[uint64][]uint64),
		roles:          make(map[domain.Identity]map[domain.Role]struct{}),
		cooldowns:      make(map[domain.Identity]uint64),
		hashes:         make(map[string]struct{}),
	}
}

func cloneIndex(in map[uint64][]uint64) map[uint64][]uint64 {
	out := make(map[uint64][]uint64, len(in))
	for k, ids := range in {
		out[k] = append([]uint64(nil), ids...)
	}
	return out
}

func (s ledgerState) clone() ledgerState {
	cloned := ledgerState{
		readings:       append([]domain.Reading(nil), s.readings...),
		events:         append([]domain.CropEvent(nil), s.events...),
		stages:         append([]domain.SupplyChainStage(nil), s.stages...),
		readingsByFarm: cloneIndex(s.readingsByFarm),
		eventsByFarm:   cloneIndex(s.eventsByFarm),
		stagesByProd:   cloneIndex(s.stagesByProd),
		roles:          make(map[domain.Identity]map[domain.Role]struct{}, len(s.roles)),
		cooldowns:      make(map[domain.Identity]uint64, len(s.cooldowns)),
		hashes:         make(map[string]struct{}, len(s.hashes)),
		paused:         s.paused,
	}
	for id, grants := range s.roles {
		cp := make(map[domain.Role]struct{}, len(grants))
		for role := range grants {
			cp[role] = struct{}{}
		}
		cloned.roles[id] = cp
	}
	for id, last := range s.cooldowns {
		cloned.cooldowns[id] = last
	}
	for h := range s.hashes {
		cloned.hashes[h] = struct{}{}
	}
	return cloned
}

func (s *ledgerState) hasRole(role domain.Role, id domain.Identity) bool {
	_, ok := s.roles[id][role]
	return ok
}

// Snapshot is the serialized form of the full ledger state used by durable
// backends and the archive exporter. Secondary indices are derived and
// rebuilt on import rather than stored.
type Snapshot struct {
	Readings  []domain.Reading          `json:"readings"`
	Events    []domain.CropEvent        `json:"crop_events"`
	Stages    []domain.SupplyChainStage `json:"stages"`
	Roles     map[string][]domain.Role  `json:"roles"`
	Cooldowns map[string]uint64         `json:"cooldowns"`
	Hashes    []string                  `json:"hashes"`
	Paused    bool                      `json:"paused"`
}

func (s ledgerState) export() Snapshot {
	snap := Snapshot{
		Readings:  append([]domain.Reading(nil), s.readings...),
		Events:    append([]domain.CropEvent(nil), s.events...),
		Stages:    append([]domain.SupplyChainStage(nil), s.stages...),
		Roles:     make(map[string][]domain.Role, len(s.roles)),
		Cooldowns: make(map[string]uint64, len(s.cooldowns)),
		Hashes:    make([]string, 0, len(s.hashes)),
		Paused:    s.paused,
	}
	for id, grants := range s.roles {
		roles := make([]domain.Role, 0, len(grants))
		for _, role := range domain.Roles() {
			if _, ok := grants[role]; ok {
				roles = append(roles, role)
			}
		}
		snap.Roles[string(id)] = roles
	}
	for id, last := range s.cooldowns {
		snap.Cooldowns[string(id)] = last
	}
	for h := range s.hashes {
		snap.Hashes = append(snap.Hashes, h)
	}
	return snap
}

func stateFromSnapshot(snap Snapshot) ledgerState {
	s := newLedgerState()
	s.readings = append(s.readings, snap.Readings...)
	s.events = append(s.events, snap.Events...)
	s.stages = append(s.stages, snap.Stages...)
	for _, r := range s.readings {
		s.readingsByFarm[r.FarmID] = append(s.readingsByFarm[r.FarmID], r.ID)
		s.hashes[r.ContentHash] = struct{}{}
	}
	for _, e := range s.events {
		s.eventsByFarm[e.FarmID] = append(s.eventsByFarm[e.FarmID], e.ID)
	}
	for _, st := range s.stages {
		s.stagesByProd[st.ProductID] = append(s.stagesByProd[st.ProductID], st.ID)
	}
	for id, roles := range snap.Roles {
		grants := make(map[domain.Role]struct{}, len(roles))
		for _, role := range roles {
			grants[role] = struct{}{}
		}
		s.roles[domain.Identity(id)] = grants
	}
	for id, last := range snap.Cooldowns {
		s.cooldowns[domain.Identity(id)] = last
	}
	for _, h := range snap.Hashes {
		s.hashes[h] = struct{}{}
	}
	s.paused = snap.Paused
	return s
}
