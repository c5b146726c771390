package live

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedLine is returned by ParseLine for any line outside the
// "<label>: <flex> |<label>: <emg>" grammar.
var ErrMalformedLine = errors.New("malformed sensor line")

// ParseLine extracts the flex and EMG values from one peripheral line, for
// example "Flex: 12.50   |EMG: 318   ". Labels are not checked.
func ParseLine(line string) (flex, emg float64, err error) {
	line = strings.TrimRight(line, "\x00")
	left, right, ok := strings.Cut(line, "|")
	if !ok {
		return 0, 0, fmt.Errorf("%w: missing '|' separator in %q", ErrMalformedLine, line)
	}
	if flex, err = parseField(left); err != nil {
		return 0, 0, fmt.Errorf("%w: flex: %v", ErrMalformedLine, err)
	}
	if emg, err = parseField(right); err != nil {
		return 0, 0, fmt.Errorf("%w: emg: %v", ErrMalformedLine, err)
	}
	return flex, emg, nil
}

func parseField(field string) (float64, error) {
	_, value, ok := strings.Cut(field, ":")
	if !ok {
		return 0, fmt.Errorf("missing ':' in %q", field)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", strings.TrimSpace(value))
	}
	return v, nil
}
