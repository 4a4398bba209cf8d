package random

import (
	"strings"
	"testing"
	"time"
)

func TestHexLength(t *testing.T) {
	for _, n := range []int{1, 5, 8, 20} {
		got := Hex(n)
		if len(got) != n*2 {
			t.Fatalf("Hex(%d) returned %q with length %d, expected %d", n, got, len(got), n*2)
		}
	}
}

func TestCallbackIDUnique(t *testing.T) {
	now := time.Unix(1700000000, 0)

	seen := make(map[string]bool)
	for i := uint64(0); i < 1000; i++ {
		id := CallbackID(now, i)
		if !strings.HasPrefix(id, "callback_1700000000000_") {
			t.Fatalf("Unexpected callback id format: %s", id)
		}
		if seen[id] {
			t.Fatalf("Duplicate callback id: %s", id)
		}
		seen[id] = true
	}

	// same timestamp and sequence still differ by the random suffix
	if CallbackID(now, 1) == CallbackID(now, 1) {
		t.Fatal("Expected random suffix to distinguish ids")
	}
}
