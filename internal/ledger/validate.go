package ledger

import "agroledger/pkg/domain"

// Ledger-wide write-path constants.
const (
	// CooldownPeriod is the minimum logical-clock interval between two
	// successful submissions from the same device identity.
	CooldownPeriod uint64 = 60
	// MaxBatchSize bounds the number of readings in one batch call.
	MaxBatchSize = 100
)

// validateReading checks the admissible ranges of one reading payload.
// Moisture and humidity must lie in [0, 1000]; temperature is intentionally
// unchecked, any signed 16-bit fixed-point value is accepted.
func validateReading(moisture, humidity uint16) error {
	if moisture > domain.MoistureMax {
		return domain.ValidationError{Field: "soil_moisture", Value: moisture}
	}
	if humidity > domain.HumidityMax {
		return domain.ValidationError{Field: "humidity", Value: humidity}
	}
	return nil
}

// validateBatchShape checks the parallel arrays and the batch bound before
// any per-item work begins. Zero-length and maximum-length batches are both
// accepted.
func validateBatchShape(farms []uint64, temperatures []int16, moistures, humidities []uint16) error {
	if len(temperatures) != len(farms) || len(moistures) != len(farms) || len(humidities) != len(farms) {
		return domain.LengthMismatchError{
			Farms:        len(farms),
			Temperatures: len(temperatures),
			Moistures:    len(moistures),
			Humidities:   len(humidities),
		}
	}
	if len(farms) > MaxBatchSize {
		return domain.BatchSizeError{Size: len(farms), Max: MaxBatchSize}
	}
	return nil
}

// cooldownActive reports whether a submission at now is still inside the
// cooldown window following last. Computed without unsigned subtraction so
// a small backward clock skew cannot wrap.
func cooldownActive(last, now uint64) bool {
	return now < last+CooldownPeriod
}
