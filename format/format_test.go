package format

import (
	"testing"
)

func TestParameters(t *testing.T) {
	testCases := []struct {
		input    uint64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1K"},
		{1_000_000, "1M"},
		{125_000_000, "125M"},
		{500_400_000, "500M"},
		{1_000_000_000, "1B"},
		{2_800_000_000, "2.80B"},
		{6_979_584_000, "6.98B"},
		{14_300_000_000, "14.3B"},
		{1_000_000_000_000, "1T"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if result := Parameters(tc.input); result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestBytes(t *testing.T) {
	testCases := []struct {
		input    uint64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{3 * MebiByte / 2, "1.5 MiB"},
		{13_959_168_000, "13.0 GiB"},
		{2 * TebiByte, "2.0 TiB"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if result := Bytes(tc.input); result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}
