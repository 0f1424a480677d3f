package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Duration wraps time.Duration with YAML/JSON parsing that also accepts
// day ("30d") and week ("2w") suffixes, which recording retention settings
// commonly use.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err == nil {
		*d = Duration(dur)
		return nil
	}

	dur, err = parseExtendedDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON accepts both nanosecond numbers and duration strings.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var ns int64
	if err := json.Unmarshal(data, &ns); err == nil {
		*d = Duration(ns)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string or number, got %s", string(data))
	}

	dur, err := time.ParseDuration(s)
	if err == nil {
		*d = Duration(dur)
		return nil
	}

	dur, err = parseExtendedDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ToDuration converts to time.Duration.
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

var extendedDurationRe = regexp.MustCompile(`^(-?)(\d+(?:\.\d+)?)(d|w)$`)

func parseExtendedDuration(s string) (time.Duration, error) {
	matches := extendedDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid format, expected format like '30d' or '2w'")
	}

	value, err := strconv.ParseFloat(matches[2], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value: %w", err)
	}
	if matches[1] == "-" {
		value = -value
	}

	switch matches[3] {
	case "d":
		return time.Duration(value * float64(24*time.Hour)), nil
	case "w":
		return time.Duration(value * float64(7*24*time.Hour)), nil
	default:
		return 0, fmt.Errorf("unsupported suffix %q", matches[3])
	}
}
