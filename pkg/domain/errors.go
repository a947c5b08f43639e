package domain

import "fmt"

// AuthorizationError reports a caller lacking the role an operation requires.
type AuthorizationError struct {
	Identity Identity
	Role     Role
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("identity %q does not hold role %s", e.Identity, e.Role)
}

// PausedError reports a write attempted while the ledger is paused.
type PausedError struct{}

func (PausedError) Error() string { return "ledger is paused" }

// CooldownError reports a device submitting again before its cooldown
// period has elapsed.
type CooldownError struct {
	Identity Identity
	Last     uint64
	Now      uint64
}

func (e CooldownError) Error() string {
	return fmt.Sprintf("device %q in cooldown: last submission at %d, retried at %d", e.Identity, e.Last, e.Now)
}

// ValidationError reports a reading field outside its admissible range.
type ValidationError struct {
	Field string
	Value uint16
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s value %d exceeds limit %d", e.Field, e.Value, MoistureMax)
}

// LengthMismatchError reports batch parallel arrays of unequal length.
type LengthMismatchError struct {
	Farms, Temperatures, Moistures, Humidities int
}

func (e LengthMismatchError) Error() string {
	return fmt.Sprintf("batch array lengths differ: farms=%d temperatures=%d moistures=%d humidities=%d",
		e.Farms, e.Temperatures, e.Moistures, e.Humidities)
}

// BatchSizeError reports a batch exceeding the fixed maximum.
type BatchSizeError struct {
	Size, Max int
}

func (e BatchSizeError) Error() string {
	return fmt.Sprintf("batch of %d readings exceeds maximum of %d", e.Size, e.Max)
}

// DuplicateError reports a content hash already present in the ledger.
type DuplicateError struct {
	Hash string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("duplicate record: content hash %s already stored", e.Hash)
}

// UnknownRoleError reports a grant or revocation naming a role kind outside
// the closed set.
type UnknownRoleError struct {
	Role Role
}

func (e UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role kind %q", e.Role)
}
