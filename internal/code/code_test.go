package code

import (
	"sort"
	"testing"
)

func TestValid(t *testing.T) {
	good := []string{"1000", "1100.10", "2000-01", "4"}
	for _, c := range good {
		if !Valid(c) {
			t.Fatalf("expected %q to be valid", c)
		}
	}
	bad := []string{"", "A100", "1000.", ".1000", "10 00", "1000..1", "123456789012345678901234567890123"}
	for _, c := range bad {
		if Valid(c) {
			t.Fatalf("expected %q to be invalid", c)
		}
	}
}

func TestLessOrdersNumerically(t *testing.T) {
	codes := []string{"1100.10", "2000", "900", "1100.2", "1100", "1000"}
	sort.Slice(codes, func(i, j int) bool { return Less(codes[i], codes[j]) })
	want := []string{"900", "1000", "1100", "1100.2", "1100.10", "2000"}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("position %d: got %q want %q (all: %v)", i, codes[i], want[i], codes)
		}
	}
}
