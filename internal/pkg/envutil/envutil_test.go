package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"3600", time.Hour},
		{"garbage", time.Minute},
	}
	for _, tc := range cases {
		t.Setenv("FLETAR_TEST_DURATION", tc.raw)
		if got := Duration("FLETAR_TEST_DURATION", time.Minute); got != tc.want {
			t.Fatalf("Duration(%q): got=%s want=%s", tc.raw, got, tc.want)
		}
	}
}

func TestBool(t *testing.T) {
	t.Setenv("FLETAR_TEST_BOOL", "off")
	if Bool("FLETAR_TEST_BOOL", true) {
		t.Fatalf("expected false for off")
	}
	t.Setenv("FLETAR_TEST_BOOL", "maybe")
	if !Bool("FLETAR_TEST_BOOL", true) {
		t.Fatalf("expected default for unparseable value")
	}
}
