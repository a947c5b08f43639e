package domain

import "fmt"

// Advisory thresholds in the fixed-point encodings of Reading. Values
// outside these windows are flagged, never rejected.
const (
	AnomalyTempMin     = -100 // -10.0 C
	AnomalyTempMax     = 600  // 60.0 C
	AnomalyMoistureMin = 50   // 5.0%
	AnomalyMoistureMax = 950  // 95.0%
	AnomalyHumidityHi  = 950  // 95.0%
)

// AnomalyRule evaluates one durably appended reading and reports zero or
// more advisory findings. Rules are stateless and must not fail.
type AnomalyRule interface {
	Name() string
	Evaluate(r Reading) []AnomalyFinding
}

// AnomalyEngine orchestrates anomaly rule evaluation.
type AnomalyEngine struct {
	rules []AnomalyRule
}

// NewAnomalyEngine constructs an engine with no rules registered.
func NewAnomalyEngine() *AnomalyEngine {
	return &AnomalyEngine{}
}

// NewDefaultAnomalyEngine builds an engine with the built-in threshold set.
func NewDefaultAnomalyEngine() *AnomalyEngine {
	engine := NewAnomalyEngine()
	engine.Register(TemperatureRangeRule{})
	engine.Register(MoistureRangeRule{})
	engine.Register(HumidityHighRule{})
	return engine
}

// Register appends a rule to the engine.
func (e *AnomalyEngine) Register(rule AnomalyRule) {
	e.rules = append(e.rules, rule)
}

// Evaluate runs every registered rule against the reading and concatenates
// their findings. Multiple categories may fire for a single reading.
func (e *AnomalyEngine) Evaluate(r Reading) []AnomalyFinding {
	var findings []AnomalyFinding
	for _, rule := range e.rules {
		findings = append(findings, rule.Evaluate(r)...)
	}
	return findings
}

// TemperatureRangeRule flags temperatures outside [-10.0, 60.0] degrees C.
type TemperatureRangeRule struct{}

// Name identifies the rule in signals and logs.
func (TemperatureRangeRule) Name() string { return string(AnomalyTemperature) }

// Evaluate implements AnomalyRule.
func (TemperatureRangeRule) Evaluate(r Reading) []AnomalyFinding {
	if r.Temperature >= AnomalyTempMin && r.Temperature <= AnomalyTempMax {
		return nil
	}
	return []AnomalyFinding{{
		Category: AnomalyTemperature,
		Message:  fmt.Sprintf("temperature %.1fC outside advisory window [-10.0, 60.0]", float64(r.Temperature)/10),
	}}
}

// MoistureRangeRule flags soil moisture outside [5.0, 95.0] percent.
type MoistureRangeRule struct{}

// Name identifies the rule in signals and logs.
func (MoistureRangeRule) Name() string { return string(AnomalyMoisture) }

// Evaluate implements AnomalyRule.
func (MoistureRangeRule) Evaluate(r Reading) []AnomalyFinding {
	if r.Moisture >= AnomalyMoistureMin && r.Moisture <= AnomalyMoistureMax {
		return nil
	}
	return []AnomalyFinding{{
		Category: AnomalyMoisture,
		Message:  fmt.Sprintf("soil moisture %.1f%% outside advisory window [5.0, 95.0]", float64(r.Moisture)/10),
	}}
}

// HumidityHighRule flags relative humidity at or above 95.0 percent.
type HumidityHighRule struct{}

// Name identifies the rule in signals and logs.
func (HumidityHighRule) Name() string { return string(AnomalyHumidity) }

// Evaluate implements AnomalyRule.
func (HumidityHighRule) Evaluate(r Reading) []AnomalyFinding {
	if r.Humidity < AnomalyHumidityHi {
		return nil
	}
	return []AnomalyFinding{{
		Category: AnomalyHumidity,
		Message:  fmt.Sprintf("humidity %.1f%% at or above advisory ceiling 95.0%%", float64(r.Humidity)/10),
	}}
}
