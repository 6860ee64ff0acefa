// Package names produces Kubernetes resource names from free-form input.
//
// [Sanitize] turns arbitrary text into an RFC 1123 compatible name that is
// length bounded, and [Resolve] applies a collision [Policy] against names
// that already exist in the cluster.
package names
