// Package secrets creates, discovers, and mounts the secrets k8r attaches to
// workloads.
//
// A secret belongs to a logical owner (normally a workload name) through the
// [kube.LabelSecretOwner] label, and keeps its user-facing name in
// [kube.LabelSecretName]. [Discover] finds the secrets for an owner and
// [Apply] exposes each one to a container: one volume per secret, one
// read-only file per key under [MountRoot], and one environment variable per
// key. Applying the same [Binding] again changes nothing.
package secrets
