package utils

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"100", "100", false},
		{" 1 500,50 ", "1500.5", false},
		{"10.05", "10.05", false},
		{"10.055", "", true},
		{"0", "", true},
		{"-5", "", true},
		{"abc", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q) = %s, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseNumbers(t *testing.T) {
	got, err := ParseNumbers("5, 3,2.5", 3)
	if err != nil {
		t.Fatalf("ParseNumbers: %v", err)
	}
	for i, want := range []string{"5", "3", "2.5"} {
		if !got[i].Equal(decimal.RequireFromString(want)) {
			t.Errorf("value %d = %s, want %s", i, got[i], want)
		}
	}

	single, err := ParseNumbers("92,75", 1)
	if err != nil || !single[0].Equal(decimal.RequireFromString("92.75")) {
		t.Errorf("single value = %v, %v; want 92.75", single, err)
	}

	if _, err := ParseNumbers("1,2", 3); err != ErrWrongCount {
		t.Errorf("short input err = %v, want ErrWrongCount", err)
	}
	if _, err := ParseNumbers("1,x,3", 3); err != ErrInvalidAmount {
		t.Errorf("bad value err = %v, want ErrInvalidAmount", err)
	}
}

func TestPercentOf(t *testing.T) {
	tests := []struct {
		amount, percent, want string
	}{
		{"100000", "5", "5000"},
		{"100000", "3", "3000"},
		{"333.33", "3", "9.99"},
		{"0.99", "1", "0"},
		{"1234.56", "2.5", "30.86"},
	}
	for _, tt := range tests {
		got := PercentOf(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.percent))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("PercentOf(%s, %s) = %s, want %s", tt.amount, tt.percent, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	got := FormatAmount(decimal.RequireFromString("15000"))
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' {
			return r
		}
		return -1
	}, got)
	if digits != "15000,00" {
		t.Errorf("FormatAmount(15000) = %q, want Russian grouping of 15000,00", got)
	}
}
