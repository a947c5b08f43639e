package ledger

import (
	"errors"
	"testing"

	"agroledger/pkg/domain"
)

func TestValidateReadingBounds(t *testing.T) {
	if err := validateReading(1000, 1000); err != nil {
		t.Fatalf("boundary values rejected: %v", err)
	}
	var vErr domain.ValidationError
	if err := validateReading(1001, 0); !errors.As(err, &vErr) || vErr.Field != "soil_moisture" {
		t.Fatalf("moisture 1001: got %v", err)
	}
	if err := validateReading(0, 1001); !errors.As(err, &vErr) || vErr.Field != "humidity" {
		t.Fatalf("humidity 1001: got %v", err)
	}
}

func TestValidateBatchShape(t *testing.T) {
	make4 := func(n int) ([]uint64, []int16, []uint16, []uint16) {
		return make([]uint64, n), make([]int16, n), make([]uint16, n), make([]uint16, n)
	}

	if err := validateBatchShape(make4(MaxBatchSize)); err != nil {
		t.Fatalf("batch of %d rejected: %v", MaxBatchSize, err)
	}
	if err := validateBatchShape(make4(0)); err != nil {
		t.Fatalf("empty batch rejected: %v", err)
	}

	var sizeErr domain.BatchSizeError
	farms, temps, moists, hums := make4(MaxBatchSize + 1)
	if err := validateBatchShape(farms, temps, moists, hums); !errors.As(err, &sizeErr) {
		t.Fatalf("batch of %d: got %v", MaxBatchSize+1, err)
	}

	var lenErr domain.LengthMismatchError
	if err := validateBatchShape(make([]uint64, 2), make([]int16, 3), make([]uint16, 2), make([]uint16, 2)); !errors.As(err, &lenErr) {
		t.Fatalf("mismatched lengths: got %v", err)
	}
}

func TestCooldownActive(t *testing.T) {
	cases := []struct {
		last, now uint64
		want      bool
	}{
		{100, 100, true},
		{100, 159, true},
		{100, 160, false},
		{100, 161, false},
		// Backward clock skew must not wrap into a huge interval.
		{100, 99, true},
		{100, 41, true},
	}
	for _, tc := range cases {
		if got := cooldownActive(tc.last, tc.now); got != tc.want {
			t.Fatalf("cooldownActive(%d, %d) = %v, want %v", tc.last, tc.now, got, tc.want)
		}
	}
}
