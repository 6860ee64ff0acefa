package kube

import (
	"k8s.io/apimachinery/pkg/labels"
)

const (
	// LabelManagedBy marks every object created by k8r.
	LabelManagedBy = "created-by"
	// ManagedByValue is the value of [LabelManagedBy].
	ManagedByValue = "k8r"

	// LabelWorkload identifies the pods of a workload. It is set on pod
	// templates and used for every later pod lookup (status, logs, deletion).
	LabelWorkload = "k8r-job"
	// LabelSourceType records the source kind a workload was built from.
	LabelSourceType = "k8r-source-type"
	// LabelType records the workload kind ("job" or "deployment").
	LabelType = "k8r-type"

	// LabelSecretOwner is the logical job name a secret belongs to.
	LabelSecretOwner = "k8r-secret-owner"
	// LabelSecretName is the logical (unsanitized) name of a secret.
	LabelSecretName = "k8r-secret"
)

// Managed returns the base label set for every k8r object.
func Managed() map[string]string {
	return map[string]string{LabelManagedBy: ManagedByValue}
}

// WorkloadLabels returns the labels for a Job or Deployment object.
func WorkloadLabels(workloadType, sourceType string) map[string]string {
	l := Managed()
	l[LabelType] = workloadType
	l[LabelSourceType] = sourceType

	return l
}

// PodLabels returns the identity labels placed on a workload's pod template.
// They double as the Deployment selector.
func PodLabels(name string) map[string]string {
	l := Managed()
	l[LabelWorkload] = name

	return l
}

// SecretLabels returns the labels for a secret owned by owner.
func SecretLabels(owner, secretName string) map[string]string {
	l := Managed()
	l[LabelSecretOwner] = owner
	l[LabelSecretName] = secretName

	return l
}

// ManagedSelector selects every object created by k8r.
func ManagedSelector() string {
	return labels.SelectorFromSet(Managed()).String()
}

// WorkloadTypeSelector selects k8r workloads of one type.
func WorkloadTypeSelector(workloadType string) string {
	l := Managed()
	l[LabelType] = workloadType

	return labels.SelectorFromSet(l).String()
}

// PodSelector selects the pods of the named workload.
func PodSelector(name string) string {
	return labels.SelectorFromSet(PodLabels(name)).String()
}

// SecretSelector selects the secrets owned by the logical job name owner.
func SecretSelector(owner string) string {
	l := Managed()
	l[LabelSecretOwner] = owner

	return labels.SelectorFromSet(l).String()
}

// IsManaged reports whether an object's labels mark it as created by k8r.
func IsManaged(objLabels map[string]string) bool {
	return objLabels[LabelManagedBy] == ManagedByValue
}
