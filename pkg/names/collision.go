package names

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Policy decides what happens when a generated name is already taken.
type Policy string

const (
	// PolicyFail rejects a taken name with [ErrNameConflict].
	PolicyFail Policy = "fail"
	// PolicyIncrement appends -1, -2, ... until a free name is found.
	PolicyIncrement Policy = "increment"

	maxIncrement = 1000
)

var (
	// ErrNameConflict is returned by [Resolve] under [PolicyFail].
	ErrNameConflict = errors.New("name already in use")

	// ErrUnknownPolicy is returned for an unrecognized [Policy].
	ErrUnknownPolicy = errors.New("unknown collision policy")

	// AllPolicies lists the valid policy names.
	AllPolicies = []string{string(PolicyFail), string(PolicyIncrement)}
)

// ExistsFunc reports whether a resource named name already exists.
type ExistsFunc func(ctx context.Context, name string) (bool, error)

// ParsePolicy validates a policy name. An empty string selects [PolicyFail].
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFail:
		return PolicyFail, nil
	case PolicyIncrement:
		return PolicyIncrement, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Resolve returns a name derived from base that is free according to exists.
// base must already be sanitized. Incremented candidates never exceed maxLen,
// so a caller that reserved room for its own suffix keeps that room. A maxLen
// of zero or less means [MaxLength].
func Resolve(ctx context.Context, base string, maxLen int, policy Policy, exists ExistsFunc) (string, error) {
	taken, err := exists(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}

	switch policy {
	case PolicyFail:
		return "", fmt.Errorf("%w: %q exists, run again with --rm to remove it first", ErrNameConflict, base)

	case PolicyIncrement:
		for i := 1; i <= maxIncrement; i++ {
			suffix := "-" + strconv.Itoa(i)
			candidate := WithSuffix(base, suffix, maxLen)

			taken, err := exists(ctx, candidate)
			if err != nil {
				return "", err
			}
			if !taken {
				return candidate, nil
			}
		}

		return "", fmt.Errorf("%w: no free name for %q after %d attempts", ErrNameConflict, base, maxIncrement)
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
}
