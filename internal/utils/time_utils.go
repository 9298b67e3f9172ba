package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseStringTime parses config duration strings of the form "10s", "5m",
// "1h" or "2d". Days are not understood by time.ParseDuration, which is why
// the config keeps its own format.
func ParseStringTime(timeString string) (time.Duration, error) {
	timeString = strings.ToLower(strings.TrimSpace(timeString))
	if cutString, _, found := strings.Cut(timeString, "s"); found {
		number, err := strconv.Atoi(cutString)
		if err != nil {
			return 0, fmt.Errorf("invalid time value %q: %w", timeString, err)
		}
		return time.Duration(number) * time.Second, nil
	}
	if cutString, _, found := strings.Cut(timeString, "m"); found {
		number, err := strconv.Atoi(cutString)
		if err != nil {
			return 0, fmt.Errorf("invalid time value %q: %w", timeString, err)
		}
		return time.Duration(number) * time.Minute, nil
	}
	if cutString, _, found := strings.Cut(timeString, "h"); found {
		number, err := strconv.Atoi(cutString)
		if err != nil {
			return 0, fmt.Errorf("invalid time value %q: %w", timeString, err)
		}
		return time.Duration(number) * time.Hour, nil
	}
	if cutString, _, found := strings.Cut(timeString, "d"); found {
		number, err := strconv.Atoi(cutString)
		if err != nil {
			return 0, fmt.Errorf("invalid time value %q: %w", timeString, err)
		}
		return time.Duration(number) * time.Hour * 24, nil
	}
	return 0, fmt.Errorf("invalid time format: %s", timeString)
}
