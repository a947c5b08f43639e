// Package ledger implements the agroledger write path: role-gated,
// rate-limited, deduplicated, atomically batched appends to the telemetry
// and provenance ledger, with advisory anomaly flagging.
package ledger

import (
	"context"
	"time"

	"agroledger/pkg/domain"
)

// Clock supplies the logical timestamp for a transaction. The source is
// monotonic-ish: small backward skew between transactions must be tolerated.
type Clock func() uint64

// Service is the transaction coordinator: the single entry point sequencing
// pause, role, cooldown, validation, and duplicate checks into one atomic
// state transition per call. Any failure aborts with zero state mutation,
// including zero cooldown mutation.
type Service struct {
	store   domain.PersistentStore
	engine  *domain.AnomalyEngine
	signals []SignalRecorder
	metrics []MetricsRecorder
	tracer  Tracer
	nowFn   Clock
}

// Option customizes service construction.
type Option func(*Service)

// WithClock overrides the logical clock source.
func WithClock(clock Clock) Option {
	return func(s *Service) { s.nowFn = clock }
}

// WithSignalRecorder attaches an additional signal recorder.
func WithSignalRecorder(rec SignalRecorder) Option {
	return func(s *Service) { s.signals = append(s.signals, rec) }
}

// WithMetricsRecorder attaches an additional metrics recorder.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) { s.metrics = append(s.metrics, rec) }
}

// WithTracer sets the tracer used around every operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// NewService constructs a coordinator over the supplied store and anomaly
// engine. A nil engine disables anomaly evaluation.
func NewService(store domain.PersistentStore, engine *domain.AnomalyEngine, opts ...Option) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		nowFn:  func() uint64 { return uint64(time.Now().Unix()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store with the
// default anomaly rules, seeding deployer as Administrator.
func NewInMemoryService(deployer domain.Identity, opts ...Option) *Service {
	return NewService(NewMemoryStore(deployer), domain.NewDefaultAnomalyEngine(), opts...)
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

func (s *Service) instrument(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	started := time.Now()
	err := fn(ctx)
	for _, rec := range s.metrics {
		rec.Observe(ctx, operation, err == nil, time.Since(started))
	}
	if span != nil {
		span.End(err)
	}
	return err
}

func (s *Service) emitSubmission(ctx context.Context, sig domain.SubmissionSignal) {
	for _, rec := range s.signals {
		rec.RecordSubmission(ctx, sig)
	}
}

func (s *Service) emitReading(ctx context.Context, r domain.Reading) {
	s.emitSubmission(ctx, domain.SubmissionSignal{
		Kind:      domain.KindReading,
		ID:        r.ID,
		Caller:    r.Device,
		Key:       r.FarmID,
		Timestamp: r.SubmittedAt,
	})
	if s.engine == nil {
		return
	}
	for _, finding := range s.engine.Evaluate(r) {
		sig := domain.AnomalySignal{
			ReadingID: r.ID,
			Device:    r.Device,
			Category:  finding.Category,
			Message:   finding.Message,
		}
		for _, rec := range s.signals {
			rec.RecordAnomaly(ctx, sig)
		}
	}
}

// SubmitSensorData appends a single reading for caller, returning the
// assigned reading id. Check order: pause, Device role, cooldown,
// validation, duplicate detection. The cooldown timestamp is written only
// after every check has passed, so a rejected submission never consumes the
// caller's cooldown slot.
func (s *Service) SubmitSensorData(ctx context.Context, caller domain.Identity, farmID uint64, temperature int16, moisture, humidity uint16) (uint64, error) {
	var stored domain.Reading
	err := s.instrument(ctx, "submit_sensor_data", func(ctx context.Context) error {
		now := s.nowFn()
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if tx.Paused() {
				return domain.PausedError{}
			}
			if !tx.HasRole(domain.RoleDevice, caller) {
				return domain.AuthorizationError{Identity: caller, Role: domain.RoleDevice}
			}
			if last, ok := tx.LastSubmission(caller); ok && cooldownActive(last, now) {
				return domain.CooldownError{Identity: caller, Last: last, Now: now}
			}
			if err := validateReading(moisture, humidity); err != nil {
				return err
			}
			hash := ReadingHash(caller, farmID, temperature, moisture, humidity, 0)
			if tx.HasContentHash(hash) {
				return domain.DuplicateError{Hash: hash}
			}
			tx.TouchCooldown(caller, now)
			tx.AddContentHash(hash)
			stored = tx.AppendReading(domain.Reading{
				Device:      caller,
				FarmID:      farmID,
				Temperature: temperature,
				Moisture:    moisture,
				Humidity:    humidity,
				SubmittedAt: now,
				ContentHash: hash,
			})
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	s.emitReading(ctx, stored)
	return stored.ID, nil
}

// SubmitBatch appends up to MaxBatchSize readings atomically. The four
// parallel arrays must have equal length. The whole call consumes exactly
// one cooldown slot. The first item failing validation or the duplicate
// check aborts the entire batch with no item persisted; only after every
// item passes are all items appended in order with consecutive ids.
func (s *Service) SubmitBatch(ctx context.Context, caller domain.Identity, farms []uint64, temperatures []int16, moistures, humidities []uint16) (int, error) {
	var stored []domain.Reading
	err := s.instrument(ctx, "submit_batch", func(ctx context.Context) error {
		now := s.nowFn()
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if tx.Paused() {
				return domain.PausedError{}
			}
			if !tx.HasRole(domain.RoleDevice, caller) {
				return domain.AuthorizationError{Identity: caller, Role: domain.RoleDevice}
			}
			if err := validateBatchShape(farms, temperatures, moistures, humidities); err != nil {
				return err
			}
			if last, ok := tx.LastSubmission(caller); ok && cooldownActive(last, now) {
				return domain.CooldownError{Identity: caller, Last: last, Now: now}
			}
			hashes := make([]string, len(farms))
			for i := range farms {
				if err := validateReading(moistures[i], humidities[i]); err != nil {
					return err
				}
				hash := ReadingHash(caller, farms[i], temperatures[i], moistures[i], humidities[i], i)
				if tx.HasContentHash(hash) {
					return domain.DuplicateError{Hash: hash}
				}
				hashes[i] = hash
			}
			tx.TouchCooldown(caller, now)
			stored = make([]domain.Reading, 0, len(farms))
			for i := range farms {
				tx.AddContentHash(hashes[i])
				stored = append(stored, tx.AppendReading(domain.Reading{
					Device:      caller,
					FarmID:      farms[i],
					Temperature: temperatures[i],
					Moisture:    moistures[i],
					Humidity:    humidities[i],
					SubmittedAt: now,
					ContentHash: hashes[i],
				}))
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	for _, r := range stored {
		s.emitReading(ctx, r)
	}
	return len(stored), nil
}

// RecordCropEvent appends a crop lifecycle event for a Farmer caller. No
// range validation, rate limiting, or duplicate detection applies.
func (s *Service) RecordCropEvent(ctx context.Context, caller domain.Identity, farmID uint64, eventType, notes, refHash string) (uint64, error) {
	var stored domain.CropEvent
	err := s.instrument(ctx, "record_crop_event", func(ctx context.Context) error {
		now := s.nowFn()
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if tx.Paused() {
				return domain.PausedError{}
			}
			if !tx.HasRole(domain.RoleFarmer, caller) {
				return domain.AuthorizationError{Identity: caller, Role: domain.RoleFarmer}
			}
			stored = tx.AppendCropEvent(domain.CropEvent{
				FarmID:     farmID,
				EventType:  eventType,
				Notes:      notes,
				RefHash:    refHash,
				RecordedAt: now,
			})
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	s.emitSubmission(ctx, domain.SubmissionSignal{
		Kind:      domain.KindCropEvent,
		ID:        stored.ID,
		Caller:    caller,
		Key:       stored.FarmID,
		Timestamp: stored.RecordedAt,
	})
	return stored.ID, nil
}

// RecordSupplyChainStage appends a provenance stage for a SupplyChainActor
// caller.
func (s *Service) RecordSupplyChainStage(ctx context.Context, caller domain.Identity, productID uint64, stage, location, refHash string) (uint64, error) {
	var stored domain.SupplyChainStage
	err := s.instrument(ctx, "record_supply_chain_stage", func(ctx context.Context) error {
		now := s.nowFn()
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if tx.Paused() {
				return domain.PausedError{}
			}
			if !tx.HasRole(domain.RoleSupplyChainActor, caller) {
				return domain.AuthorizationError{Identity: caller, Role: domain.RoleSupplyChainActor}
			}
			stored = tx.AppendStage(domain.SupplyChainStage{
				ProductID:  productID,
				Stage:      stage,
				Location:   location,
				RefHash:    refHash,
				RecordedAt: now,
			})
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	s.emitSubmission(ctx, domain.SubmissionSignal{
		Kind:      domain.KindSupplyChainStage,
		ID:        stored.ID,
		Caller:    caller,
		Key:       stored.ProductID,
		Timestamp: stored.RecordedAt,
	})
	return stored.ID, nil
}

// GrantRole creates a (identity, role) grant. Only an Administrator caller
// may grant, and only roles from the closed set are accepted. Granting an
// already-held role is a no-op success.
func (s *Service) GrantRole(ctx context.Context, caller domain.Identity, role domain.Role, id domain.Identity) error {
	return s.instrument(ctx, "grant_role", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if !role.Valid() {
				return domain.UnknownRoleError{Role: role}
			}
			if !tx.HasRole(domain.RoleAdministrator, caller) {
				return domain.AuthorizationError{Identity: caller, Role: domain.RoleAdministrator}
			}
			tx.Grant(role, id)
			return nil
		})
	})
}

// RevokeRole destroys a grant. There is deliberately no self-revocation
// guard: an Administrator revoking its own sole Administrator role
// permanently locks out role administration. Revoking a Device role does
// not clear the device's cooldown state.
func (s *Service) RevokeRole(ctx context.Context, caller domain.Identity, role domain.Role, id domain.Identity) error {
	return s.instrument(ctx, "revoke_role", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if !role.Valid() {
				return domain.UnknownRoleError{Role: role}
			}
			if !tx.HasRole(domain.RoleAdministrator, caller) {
				return domain.AuthorizationError{Identity: caller, Role: domain.RoleAdministrator}
			}
			tx.Revoke(role, id)
			return nil
		})
	})
}

// Pause suspends the four data write entry points. Pausing an already
// paused ledger is a no-op success. Role and pause administration stay
// available while paused.
func (s *Service) Pause(ctx context.Context, caller domain.Identity) error {
	return s.setPaused(ctx, "pause", caller, true)
}

// Unpause resumes data writes. Unpausing an active ledger is a no-op
// success.
func (s *Service) Unpause(ctx context.Context, caller domain.Identity) error {
	return s.setPaused(ctx, "unpause", caller, false)
}

func (s *Service) setPaused(ctx context.Context, operation string, caller domain.Identity, paused bool) error {
	return s.instrument(ctx, operation, func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if !tx.HasRole(domain.RoleAdministrator, caller) {
				return domain.AuthorizationError{Identity: caller, Role: domain.RoleAdministrator}
			}
			tx.SetPaused(paused)
			return nil
		})
	})
}

// HasRole reports whether id currently holds role.
func (s *Service) HasRole(ctx context.Context, role domain.Role, id domain.Identity) (bool, error) {
	var held bool
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		held = v.HasRole(role, id)
		return nil
	})
	return held, err
}

// Paused reports the current pause flag.
func (s *Service) Paused(ctx context.Context) (bool, error) {
	var paused bool
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		paused = v.Paused()
		return nil
	})
	return paused, err
}

// ReadingsByFarm returns the reading ids recorded for farmID in submission
// order.
func (s *Service) ReadingsByFarm(ctx context.Context, farmID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		ids = v.ReadingsByFarm(farmID)
		return nil
	})
	return ids, err
}

// CropEventsByFarm returns the crop event ids recorded for farmID in
// submission order.
func (s *Service) CropEventsByFarm(ctx context.Context, farmID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		ids = v.CropEventsByFarm(farmID)
		return nil
	})
	return ids, err
}

// StagesByProduct returns the stage ids recorded for productID in
// submission order.
func (s *Service) StagesByProduct(ctx context.Context, productID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		ids = v.StagesByProduct(productID)
		return nil
	})
	return ids, err
}

// Reading returns the stored reading with the given id.
func (s *Service) Reading(ctx context.Context, id uint64) (domain.Reading, bool, error) {
	var (
		r  domain.Reading
		ok bool
	)
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		r, ok = v.Reading(id)
		return nil
	})
	return r, ok, err
}

// CropEvent returns the stored crop event with the given id.
func (s *Service) CropEvent(ctx context.Context, id uint64) (domain.CropEvent, bool, error) {
	var (
		e  domain.CropEvent
		ok bool
	)
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		e, ok = v.CropEvent(id)
		return nil
	})
	return e, ok, err
}

// Stage returns the stored supply-chain stage with the given id.
func (s *Service) Stage(ctx context.Context, id uint64) (domain.SupplyChainStage, bool, error) {
	var (
		st domain.SupplyChainStage
		ok bool
	)
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		st, ok = v.Stage(id)
		return nil
	})
	return st, ok, err
}

// Totals reports the current record counts for the three sequences.
type Totals struct {
	Readings   int `json:"readings"`
	CropEvents int `json:"crop_events"`
	Stages     int `json:"stages"`
}

// TotalReadings returns the number of stored readings.
func (s *Service) TotalReadings(ctx context.Context) (int, error) {
	t, err := s.CurrentTotals(ctx)
	return t.Readings, err
}

// TotalCropEvents returns the number of stored crop events.
func (s *Service) TotalCropEvents(ctx context.Context) (int, error) {
	t, err := s.CurrentTotals(ctx)
	return t.CropEvents, err
}

// TotalStages returns the number of stored supply-chain stages.
func (s *Service) TotalStages(ctx context.Context) (int, error) {
	t, err := s.CurrentTotals(ctx)
	return t.Stages, err
}

// CurrentTotals returns all three counts from one consistent view.
func (s *Service) CurrentTotals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		t = Totals{
			Readings:   v.TotalReadings(),
			CropEvents: v.TotalCropEvents(),
			Stages:     v.TotalStages(),
		}
		return nil
	})
	return t, err
}
