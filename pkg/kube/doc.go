// Package kube holds the pieces of k8r that talk to the Kubernetes API
// directly: client construction, namespace resolution, the label vocabulary
// shared by every component, and a lookup [Result] type that keeps "not found"
// separate from real failures.
//
// Every selector k8r uses to find pods, secrets, and workloads is built from
// the constants in labels.go, so the workload builder, the secret binder, and
// the lifecycle monitor can never disagree about them.
package kube
