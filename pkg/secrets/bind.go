package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/log"
	"github.com/macropower/k8r/pkg/names"
)

const (
	// MountRoot is the directory each secret key is mounted under.
	MountRoot = "/k8r/secrets"

	volumePrefix = "secret-"
)

// Binding is a secret discovered for an owner.
type Binding struct {
	// LogicalName is the name the secret was created with.
	LogicalName string
	// SecretName is the name of the Secret object.
	SecretName string
	// DataKeys are the secret's keys, sorted.
	DataKeys []string
}

// Discover lists the secrets owned by owner, sorted by object name.
func Discover(ctx context.Context, c *kube.Client, owner string) ([]Binding, error) {
	list, err := c.Clientset.CoreV1().Secrets(c.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: kube.SecretSelector(owner),
	})
	if err != nil {
		return nil, fmt.Errorf("list secrets for %q: %w", owner, err)
	}

	bindings := make([]Binding, 0, len(list.Items))
	for i := range list.Items {
		bindings = append(bindings, bindingFor(&list.Items[i]))
	}

	slices.SortFunc(bindings, func(a, b Binding) int {
		return strings.Compare(a.SecretName, b.SecretName)
	})

	return bindings, nil
}

func bindingFor(s *corev1.Secret) Binding {
	keys := make([]string, 0, len(s.Data)+len(s.StringData))
	for k := range s.Data {
		keys = append(keys, k)
	}
	for k := range s.StringData {
		if _, ok := s.Data[k]; !ok {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	logical := s.Labels[kube.LabelSecretName]
	if logical == "" {
		logical = s.Name
	}

	return Binding{
		LogicalName: logical,
		SecretName:  s.Name,
		DataKeys:    keys,
	}
}

// Apply exposes b to c. Mounts and environment variables are appended;
// entries already present (by mount path or variable name) are left alone,
// and a volume already referencing the secret is reused. A key already
// provided by a different secret is skipped with a warning naming both.
func Apply(ctx context.Context, b Binding, c *corev1.Container, volumes *[]corev1.Volume) {
	volName := ensureVolume(b, volumes)

	for _, key := range b.DataKeys {
		shadowedBy := ""

		mountPath := MountPath(key)
		if i := slices.IndexFunc(c.VolumeMounts, func(m corev1.VolumeMount) bool {
			return m.MountPath == mountPath
		}); i >= 0 {
			if other := volumeSecret(*volumes, c.VolumeMounts[i].Name); other != b.SecretName {
				shadowedBy = other
			}
		} else {
			c.VolumeMounts = append(c.VolumeMounts, corev1.VolumeMount{
				Name:      volName,
				MountPath: mountPath,
				SubPath:   key,
				ReadOnly:  true,
			})
		}

		env := EnvName(key)
		if i := slices.IndexFunc(c.Env, func(e corev1.EnvVar) bool {
			return e.Name == env
		}); i >= 0 {
			if other := envSecret(c.Env[i]); other != b.SecretName && shadowedBy == "" {
				shadowedBy = other
			}
		} else {
			c.Env = append(c.Env, corev1.EnvVar{
				Name: env,
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: b.SecretName},
						Key:                  key,
					},
				},
			})
		}

		if shadowedBy != "" {
			log.WithContext(ctx).WarnContext(ctx, "secret key already provided by another secret, skipping",
				slog.String("key", key),
				slog.String("secret", b.SecretName),
				slog.String("provided_by", shadowedBy),
			)
		}
	}
}

// volumeSecret returns the secret behind the volume named name, or "" when
// the volume is not a secret volume.
func volumeSecret(volumes []corev1.Volume, name string) string {
	for _, v := range volumes {
		if v.Name == name && v.Secret != nil {
			return v.Secret.SecretName
		}
	}

	return ""
}

func envSecret(e corev1.EnvVar) string {
	if e.ValueFrom == nil || e.ValueFrom.SecretKeyRef == nil {
		return ""
	}

	return e.ValueFrom.SecretKeyRef.Name
}

// ensureVolume returns the name of the volume referencing b's secret,
// adding one if needed.
func ensureVolume(b Binding, volumes *[]corev1.Volume) string {
	name := VolumeName(b.LogicalName)

	for _, v := range *volumes {
		if v.Secret == nil {
			continue
		}
		if v.Secret.SecretName == b.SecretName {
			return v.Name
		}
	}

	// Two owners can share a logical name; fall back to the object name.
	if slices.ContainsFunc(*volumes, func(v corev1.Volume) bool { return v.Name == name }) {
		name = VolumeName(b.SecretName)
	}

	*volumes = append(*volumes, corev1.Volume{
		Name: name,
		VolumeSource: corev1.VolumeSource{
			Secret: &corev1.SecretVolumeSource{SecretName: b.SecretName},
		},
	})

	return name
}

// VolumeName returns the pod volume name for a secret.
func VolumeName(name string) string {
	return volumePrefix + names.Sanitize(name, names.ReserveSuffix(names.MaxLength, len(volumePrefix)))
}

// MountPath returns where key is mounted inside the container.
func MountPath(key string) string {
	return path.Join(MountRoot, key)
}

// EnvName returns the environment variable a key is exposed as.
func EnvName(key string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToUpper(key))
}
