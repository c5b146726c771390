package live

import (
	"errors"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantFlex float64
		wantEMG  float64
		wantErr  bool
	}{
		{"firmware format", "Flex: 12.50   |EMG: 318   ", 12.5, 318, false},
		{"no padding", "Flex:1|EMG:2", 1, 2, false},
		{"negative", "F: -3.25 |E: 0", -3.25, 0, false},
		{"trailing newline", "Flex: 4 |EMG: 5\r\n", 4, 5, false},
		{"nul padded", "Flex: 4 |EMG: 5\x00\x00", 4, 5, false},
		{"extra pipe goes to emg", "Flex: 1 |EMG: 2|3", 0, 0, true},
		{"missing separator", "Flex: 1 EMG: 2", 0, 0, true},
		{"missing colon", "Flex 1 |EMG: 2", 0, 0, true},
		{"non numeric", "Flex: high |EMG: 2", 0, 0, true},
		{"empty value", "Flex: |EMG: 2", 0, 0, true},
		{"nan", "Flex: NaN |EMG: 2", 0, 0, true},
		{"inf", "Flex: 1 |EMG: +Inf", 0, 0, true},
		{"empty", "", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flex, emg, err := ParseLine(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedLine) {
					t.Fatalf("expected ErrMalformedLine, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if flex != tt.wantFlex || emg != tt.wantEMG {
				t.Errorf("got (%v, %v), want (%v, %v)", flex, emg, tt.wantFlex, tt.wantEMG)
			}
		})
	}
}
