package ledger

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"agroledger/pkg/domain"
)

// SignalRecorder receives the observable side effects of committed
// transactions: one submission signal per appended record and zero or more
// advisory anomaly signals per reading. Recorders must not fail; signal
// delivery never affects transaction outcome.
type SignalRecorder interface {
	RecordSubmission(ctx context.Context, sig domain.SubmissionSignal)
	RecordAnomaly(ctx context.Context, sig domain.AnomalySignal)
}

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span, recording the operation error if any.
type TraceSpan interface {
	End(err error)
}

// MemorySignalLog retains emitted signals in memory for inspection. The log
// keeps at most limit entries of each kind, dropping the oldest first.
type MemorySignalLog struct {
	mu          sync.Mutex
	limit       int
	submissions []domain.SubmissionSignal
	anomalies   []domain.AnomalySignal
}

// NewMemorySignalLog constructs a bounded in-memory signal log. A
// non-positive limit retains everything.
func NewMemorySignalLog(limit int) *MemorySignalLog {
	return &MemorySignalLog{limit: limit}
}

// RecordSubmission implements SignalRecorder.
func (l *MemorySignalLog) RecordSubmission(_ context.Context, sig domain.SubmissionSignal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submissions = append(l.submissions, sig)
	if l.limit > 0 && len(l.submissions) > l.limit {
		l.submissions = l.submissions[len(l.submissions)-l.limit:]
	}
}

// RecordAnomaly implements SignalRecorder.
func (l *MemorySignalLog) RecordAnomaly(_ context.Context, sig domain.AnomalySignal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.anomalies = append(l.anomalies, sig)
	if l.limit > 0 && len(l.anomalies) > l.limit {
		l.anomalies = l.anomalies[len(l.anomalies)-l.limit:]
	}
}

// Submissions returns a copy of the retained submission signals.
func (l *MemorySignalLog) Submissions() []domain.SubmissionSignal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.SubmissionSignal(nil), l.submissions...)
}

// Anomalies returns a copy of the retained anomaly signals.
func (l *MemorySignalLog) Anomalies() []domain.AnomalySignal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AnomalySignal(nil), l.anomalies...)
}

// JSONSignalRecorder serializes signals as JSON lines to a writer, one
// object per signal, tagged with the signal type.
type JSONSignalRecorder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSignalRecorder constructs a recorder writing to w.
func NewJSONSignalRecorder(w io.Writer) *JSONSignalRecorder {
	return &JSONSignalRecorder{enc: json.NewEncoder(w)}
}

type jsonSignalEnvelope struct {
	Type       string                   `json:"type"`
	Submission *domain.SubmissionSignal `json:"submission,omitempty"`
	Anomaly    *domain.AnomalySignal    `json:"anomaly,omitempty"`
	EmittedAt  time.Time                `json:"emitted_at"`
}

// RecordSubmission implements SignalRecorder.
func (r *JSONSignalRecorder) RecordSubmission(_ context.Context, sig domain.SubmissionSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(jsonSignalEnvelope{Type: "submitted", Submission: &sig, EmittedAt: time.Now().UTC()})
}

// RecordAnomaly implements SignalRecorder.
func (r *JSONSignalRecorder) RecordAnomaly(_ context.Context, sig domain.AnomalySignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(jsonSignalEnvelope{Type: "anomaly", Anomaly: &sig, EmittedAt: time.Now().UTC()})
}

var expvarSeq uint64

// ExpvarMetricsRecorder publishes aggregate timing and result counters via
// expvar for deployments that prefer process-local metrics without external
// dependencies. Totals are milliseconds per operation plus success/error
// counters.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder published
// under the supplied name. When name is empty a unique one is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("ledger_service_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	results := make(map[string]map[string]int64, len(r.results))
	for op, statusCounts := range r.results {
		cpy := make(map[string]int64, len(statusCounts))
		for status, count := range statusCounts {
			cpy[status] = count
		}
		results[op] = cpy
	}
	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Results:     results,
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe records a service operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	status := "error"
	if success {
		status = "success"
	}
	r.mu.Lock()
	r.durations[operation] += ms
	if _, ok := r.results[operation]; !ok {
		r.results[operation] = make(map[string]int64, 2)
	}
	r.results[operation][status]++
	r.mu.Unlock()
}

// JSONTraceEntry represents a serialized trace span emitted by JSONTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTracer serializes spans to a writer and retains them for inspection.
type JSONTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to w.
// Spans are retained for later inspection via Entries.
func NewJSONTracer(w io.Writer) *JSONTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTracer{enc: enc}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements the Tracer interface.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	status := "success"
	var errMsg string
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
