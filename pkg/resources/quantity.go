// Package resources normalizes human-friendly CPU and memory strings into
// Kubernetes resource requests and limits.
package resources

import (
	"errors"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ErrInvalidQuantity is returned when a normalized quantity cannot be parsed.
var ErrInvalidQuantity = errors.New("invalid resource quantity")

// Pair holds a request and a limit in Kubernetes quantity notation.
type Pair struct {
	Request string
	Limit   string
}

// Parse parses "quantity" or "request-limit". A single quantity is used for
// both the request and the limit. The second return value is false when spec
// is empty.
//
// Parse only rewrites units ("gb" to "Gi", "mb" to "Mi"); it does not check
// that the result is a valid quantity.
func Parse(spec string) (Pair, bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Pair{}, false
	}

	if req, limit, ok := strings.Cut(spec, "-"); ok {
		return Pair{Request: Normalize(req), Limit: Normalize(limit)}, true
	}

	n := Normalize(spec)

	return Pair{Request: n, Limit: n}, true
}

// Normalize rewrites a single quantity's unit suffix.
func Normalize(q string) string {
	q = strings.TrimSpace(q)

	switch {
	case strings.HasSuffix(q, "gb"):
		return strings.TrimSuffix(q, "gb") + "Gi"
	case strings.HasSuffix(q, "mb"):
		return strings.TrimSuffix(q, "mb") + "Mi"
	}

	return q
}

// Requirements builds container resource requirements from optional memory
// and CPU specs. Empty specs are omitted; if both are empty the zero value is
// returned.
func Requirements(memory, cpu string) (corev1.ResourceRequirements, error) {
	var rr corev1.ResourceRequirements

	for name, spec := range map[corev1.ResourceName]string{
		corev1.ResourceMemory: memory,
		corev1.ResourceCPU:    cpu,
	} {
		pair, ok := Parse(spec)
		if !ok {
			continue
		}

		req, err := resource.ParseQuantity(pair.Request)
		if err != nil {
			return rr, fmt.Errorf("%w: %s request %q: %w", ErrInvalidQuantity, name, pair.Request, err)
		}

		limit, err := resource.ParseQuantity(pair.Limit)
		if err != nil {
			return rr, fmt.Errorf("%w: %s limit %q: %w", ErrInvalidQuantity, name, pair.Limit, err)
		}

		if rr.Requests == nil {
			rr.Requests = corev1.ResourceList{}
			rr.Limits = corev1.ResourceList{}
		}

		rr.Requests[name] = req
		rr.Limits[name] = limit
	}

	return rr, nil
}
