package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.34", "12.34", true},
		{"12,34", "12.34", true},
		{"0", "0", true},
		{"  7 ", "7", true},
		{"12.345", "12.35", true},
		{"12.344", "12.34", true},
		{"", "", false},
		{"-1", "", false},
		{"+1", "", false},
		{"1.2.3", "", false},
		{"abc", "", false},
		{".", "", false},
		{"1e3", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", tc.in, err)
			}
			if got.String() != tc.want {
				t.Fatalf("%q: expected %s, got %s", tc.in, tc.want, got.String())
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q: expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}
