package errs

import (
	"testing"

	"github.com/pkg/errors"
)

func TestSentinelsDistinguishableAfterWrap(t *testing.T) {
	sentinels := []error{NameCollision, MoveWouldCreateCycle, VariantMismatch, NotFound, Closed, Stale}
	for _, want := range sentinels {
		wrapped := errors.Wrap(want, "while doing something")
		if !errors.Is(wrapped, want) {
			t.Errorf("errors.Is(wrapped %v, %v) = false, want true", wrapped, want)
		}
		for _, other := range sentinels {
			if other == want {
				continue
			}
			if errors.Is(wrapped, other) {
				t.Errorf("wrapped %v incorrectly matched unrelated sentinel %v", want, other)
			}
		}
	}
}
