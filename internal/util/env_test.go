package util

import "testing"

func TestGetenvDefault(t *testing.T) {
	t.Setenv("TRIAGEBOT_TEST_KEY", "value")
	if got := GetenvDefault("TRIAGEBOT_TEST_KEY", "fallback"); got != "value" {
		t.Errorf("GetenvDefault = %q, want %q", got, "value")
	}
	t.Setenv("TRIAGEBOT_TEST_KEY", "")
	if got := GetenvDefault("TRIAGEBOT_TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("GetenvDefault = %q, want %q", got, "fallback")
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"OFF", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Setenv("TRIAGEBOT_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("TRIAGEBOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}
