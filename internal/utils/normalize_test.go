package utils

import "testing"

func TestNormalizeDeviceID(t *testing.T) {
	tests := []struct{ raw, want string }{
		{"AA:11:BB:22:CC:33", "aa11bb22cc33"},
		{"aa-11-bb-22-cc-33", "aa11bb22cc33"},
		{"aa_11_bb_22_cc_33", "aa11bb22cc33"},
		{"aa.11.bb.22.cc.33", "aa11bb22cc33"},
		{"  AA11BB22CC33  ", "aa11bb22cc33"},
		{"wican-garage 01", "wicangarage01"},
		{"::--..__  ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDeviceID(tt.raw); got != tt.want {
			t.Errorf("NormalizeDeviceID(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
