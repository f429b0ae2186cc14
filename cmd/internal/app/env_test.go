package app

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("RIPPLE_TEST_STR", "  value  ")
	if got := EnvString("RIPPLE_TEST_STR", "def"); got != "value" {
		t.Errorf("got %q", got)
	}
	if got := EnvString("RIPPLE_TEST_STR_MISSING", "def"); got != "def" {
		t.Errorf("default: got %q", got)
	}
}

func TestEnvBool(t *testing.T) {
	cases := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"0", true, false},
		{"garbage", true, true},
		{"", false, false},
	}

	for _, tc := range cases {
		t.Setenv("RIPPLE_TEST_BOOL", tc.raw)
		if got := EnvBool("RIPPLE_TEST_BOOL", tc.def); got != tc.want {
			t.Errorf("EnvBool(%q, %v) = %v, want %v", tc.raw, tc.def, got, tc.want)
		}
	}
}

func TestEnvIntRejectsNonPositive(t *testing.T) {
	for _, raw := range []string{"0", "-5", "nope", ""} {
		t.Setenv("RIPPLE_TEST_INT", raw)
		if got := EnvInt("RIPPLE_TEST_INT", 7); got != 7 {
			t.Errorf("EnvInt(%q) = %d, want default 7", raw, got)
		}
	}

	t.Setenv("RIPPLE_TEST_INT", "42")
	if got := EnvInt("RIPPLE_TEST_INT", 7); got != 42 {
		t.Errorf("got %d", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("RIPPLE_TEST_DUR", "250ms")
	if got := EnvDuration("RIPPLE_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("got %v", got)
	}

	for _, raw := range []string{"-1s", "0", "soon", ""} {
		t.Setenv("RIPPLE_TEST_DUR", raw)
		if got := EnvDuration("RIPPLE_TEST_DUR", time.Second); got != time.Second {
			t.Errorf("EnvDuration(%q) = %v, want default", raw, got)
		}
	}
}

func TestEnvCSV(t *testing.T) {
	t.Setenv("RIPPLE_TEST_CSV", " a, b ,,c ")
	got := EnvCSV("RIPPLE_TEST_CSV", "x,y")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	t.Setenv("RIPPLE_TEST_CSV", "")
	if got := EnvCSV("RIPPLE_TEST_CSV", "x,y"); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("default: got %v", got)
	}
}
