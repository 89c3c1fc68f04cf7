package centrifuge

import (
	"testing"
	"time"
)

func TestNextBackoffStaysWithinBounds(t *testing.T) {
	base := 1 * time.Second
	cap_ := 20 * time.Second
	prev := time.Duration(0)

	for i := 0; i < 200; i++ {
		interval := nextBackoff(base, cap_, prev)
		if interval < base {
			t.Fatalf("interval %v below base %v", interval, base)
		}
		if interval > cap_ {
			t.Fatalf("interval %v above cap %v", interval, cap_)
		}
		prev = interval
	}
}

func TestNextBackoffFirstCallUsesBase(t *testing.T) {
	base := 1 * time.Second
	cap_ := 20 * time.Second
	for i := 0; i < 50; i++ {
		interval := nextBackoff(base, cap_, 0)
		if interval != base {
			t.Fatalf("first interval %v, want base %v", interval, base)
		}
	}
}

func TestNextBackoffRespectsCapEvenWithLargePrev(t *testing.T) {
	base := 1 * time.Second
	cap_ := 5 * time.Second
	prev := 100 * time.Second
	for i := 0; i < 50; i++ {
		interval := nextBackoff(base, cap_, prev)
		if interval > cap_ {
			t.Fatalf("interval %v exceeded cap %v", interval, cap_)
		}
	}
}
