package workload

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeout is returned by [ParseTimeout].
var ErrInvalidTimeout = errors.New("invalid timeout")

// ParseTimeout parses a Go duration ("1h", "30m", "3600s", "1h30m") or a
// bare number of seconds. An empty string means no timeout.
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		secs, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidTimeout, s, err)
		}

		d = time.Duration(secs) * time.Second
	}

	if d < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidTimeout, s)
	}

	return d, nil
}
