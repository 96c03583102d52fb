package config

import (
	"fmt"
	"strings"
	"time"
)

// Interval settings in the config file are Go duration strings such as
// "30s" or "5m". An empty value means the setting was not given.

// ParseDurationField parses one duration setting. The field name is
// carried into errors so a bad value inside a nested section is easy
// to locate.
func ParseDurationField(field, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration cannot be negative", field)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for
// unset values. Most interval settings have a built-in default and
// only need the file to override it.
func ParseDurationOrDefault(field, raw string, fallback time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return fallback, nil
	}
	return d, nil
}
