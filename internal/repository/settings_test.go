package repository

import "testing"

func TestParseBool(t *testing.T) {
	trues := []string{"1", "true", "TRUE", "yes", "on", " On "}
	for _, raw := range trues {
		if !parseBool(raw, false) {
			t.Errorf("parseBool(%q) = false, want true", raw)
		}
	}
	falses := []string{"0", "false", "no", "OFF"}
	for _, raw := range falses {
		if parseBool(raw, true) {
			t.Errorf("parseBool(%q) = true, want false", raw)
		}
	}
	// garbage and absence fall back
	if !parseBool("maybe", true) || parseBool("", false) {
		t.Error("unparseable values must return the fallback")
	}
}

func TestParseInt(t *testing.T) {
	if got := parseInt("42", 5); got != 42 {
		t.Errorf("parseInt(42) = %d", got)
	}
	if got := parseInt(" 7 ", 5); got != 7 {
		t.Errorf("parseInt with whitespace = %d", got)
	}
	// zero, negatives and garbage are not valid timeouts or counts
	for _, raw := range []string{"0", "-3", "ten", ""} {
		if got := parseInt(raw, 5); got != 5 {
			t.Errorf("parseInt(%q) = %d, want fallback 5", raw, got)
		}
	}
}

func TestParseString(t *testing.T) {
	if got := parseString(" wican ", "fallback"); got != "wican" {
		t.Errorf("parseString = %q", got)
	}
	if got := parseString("   ", "fallback"); got != "fallback" {
		t.Errorf("blank must fall back, got %q", got)
	}
}
