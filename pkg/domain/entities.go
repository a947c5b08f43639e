// Package domain defines the core persistent entities, value types, and
// anomaly evaluation primitives used by agroledger.
package domain

// Identity is an authenticated caller principal. Authentication itself is
// performed outside the core; the ledger only sees the resolved identity.
type Identity string

// RecordKind identifies the type of record stored in the ledger.
type RecordKind string

// Supported record kind identifiers used in signals and persistence buckets.
const (
	// KindReading identifies a sensor reading record.
	KindReading RecordKind = "reading"
	// KindCropEvent identifies a crop lifecycle event record.
	KindCropEvent RecordKind = "crop_event"
	// KindSupplyChainStage identifies a supply-chain stage record.
	KindSupplyChainStage RecordKind = "supply_chain_stage"
)

// Fixed-point encodings used by sensor payloads. Temperature is deci-degrees
// Celsius over the full signed 16-bit range; moisture and humidity are
// deci-percent, where 0 means 0.0% and 1000 means 100.0%.
const (
	// MoistureMax is the largest admissible soil moisture value (100.0%).
	MoistureMax = 1000
	// HumidityMax is the largest admissible relative humidity value (100.0%).
	HumidityMax = 1000
)

// Reading is an immutable sensor reading accepted into the ledger.
type Reading struct {
	ID          uint64   `json:"id"`
	Device      Identity `json:"device"`
	FarmID      uint64   `json:"farm_id"`
	Temperature int16    `json:"temperature"`
	Moisture    uint16   `json:"moisture"`
	Humidity    uint16   `json:"humidity"`
	SubmittedAt uint64   `json:"submitted_at"`
	ContentHash string   `json:"content_hash"`
}

// CropEvent is an immutable crop lifecycle record. EventType is a
// caller-supplied tag such as "seeding" or "harvesting"; the ledger accepts
// any string. RefHash is an optional, unvalidated link to external evidence.
type CropEvent struct {
	ID         uint64 `json:"id"`
	FarmID     uint64 `json:"farm_id"`
	EventType  string `json:"event_type"`
	Notes      string `json:"notes"`
	RefHash    string `json:"ref_hash,omitempty"`
	RecordedAt uint64 `json:"recorded_at"`
}

// SupplyChainStage is an immutable provenance record for a product.
type SupplyChainStage struct {
	ID         uint64 `json:"id"`
	ProductID  uint64 `json:"product_id"`
	Stage      string `json:"stage"`
	Location   string `json:"location"`
	RefHash    string `json:"ref_hash,omitempty"`
	RecordedAt uint64 `json:"recorded_at"`
}

// SubmissionSignal is emitted once per record appended by a committed
// transaction. It is purely observational.
type SubmissionSignal struct {
	Kind      RecordKind `json:"kind"`
	ID        uint64     `json:"id"`
	Caller    Identity   `json:"caller"`
	Key       uint64     `json:"key"` // farm id or product id
	Timestamp uint64     `json:"timestamp"`
}

// AnomalyCategory names the advisory threshold that fired.
type AnomalyCategory string

// Advisory categories raised by the built-in anomaly rules.
const (
	// AnomalyTemperature fires when temperature leaves [-10.0, 60.0] degrees C.
	AnomalyTemperature AnomalyCategory = "temperature_range"
	// AnomalyMoisture fires when soil moisture leaves [5.0, 95.0] percent.
	AnomalyMoisture AnomalyCategory = "soil_moisture_range"
	// AnomalyHumidity fires when relative humidity reaches 95.0 percent.
	AnomalyHumidity AnomalyCategory = "humidity_high"
)

// AnomalyFinding reports one advisory threshold violation for a reading.
// Findings never affect transaction outcome.
type AnomalyFinding struct {
	Category AnomalyCategory `json:"category"`
	Message  string          `json:"message"`
}

// AnomalySignal pairs a finding with the reading that triggered it.
type AnomalySignal struct {
	ReadingID uint64          `json:"reading_id"`
	Device    Identity        `json:"device"`
	Category  AnomalyCategory `json:"category"`
	Message   string          `json:"message"`
}
