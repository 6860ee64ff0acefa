package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/log"
	"github.com/macropower/k8r/pkg/names"
)

const maxOwnerLength = 50

var (
	// ErrInvalidSecretName is returned when a secret name cannot be used as a
	// label value or data key.
	ErrInvalidSecretName = errors.New("invalid secret name")
	// ErrEmptySecret is returned when a directory value contains no files.
	ErrEmptySecret = errors.New("secret has no data")
)

// ValueKind describes where a secret's data came from.
type ValueKind string

const (
	ValueFile      ValueKind = "file"
	ValueDirectory ValueKind = "directory"
	ValueLiteral   ValueKind = "literal"
)

// FullName returns the Secret object name for a secret called name owned by
// owner. The result fits in [names.MaxLength].
func FullName(owner, name string) string {
	owner = names.Sanitize(owner, names.MaxLength)

	room := names.MaxLength - len(owner) - 1
	if room <= 0 {
		owner = names.Sanitize(owner, maxOwnerLength)
		room = names.MaxLength - len(owner) - 1
	}

	return owner + "-" + names.Sanitize(name, room)
}

// New builds a Secret named [FullName] for owner. value is read as a file if
// it names one, as one key per file if it names a directory, and otherwise
// used literally.
func New(owner, name, value string) (*corev1.Secret, ValueKind, error) {
	if name == "" {
		return nil, "", fmt.Errorf("%w: empty name", ErrInvalidSecretName)
	}
	if errs := validation.IsValidLabelValue(name); len(errs) > 0 {
		return nil, "", fmt.Errorf("%w: %q: %s", ErrInvalidSecretName, name, strings.Join(errs, "; "))
	}

	data, kind, err := readValue(name, value)
	if err != nil {
		return nil, "", err
	}

	owner = names.Sanitize(owner, names.MaxLength)

	return &corev1.Secret{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   FullName(owner, name),
			Labels: kube.SecretLabels(owner, name),
		},
		Type: corev1.SecretTypeOpaque,
		Data: data,
	}, kind, nil
}

func readValue(name, value string) (map[string][]byte, ValueKind, error) {
	info, err := os.Stat(value)
	switch {
	case err != nil:
		return map[string][]byte{name: []byte(value)}, ValueLiteral, nil

	case info.IsDir():
		data, err := readDir(value)
		if err != nil {
			return nil, "", err
		}

		return data, ValueDirectory, nil
	}

	b, err := os.ReadFile(value) //nolint:gosec // G304: Reading user-provided paths is intended.
	if err != nil {
		return nil, "", fmt.Errorf("read %q: %w", value, err)
	}

	return map[string][]byte{name: b}, ValueFile, nil
}

func readDir(root string) (map[string][]byte, error) {
	data := map[string][]byte{}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path for %q: %w", p, err)
		}

		key := strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")
		if errs := validation.IsConfigMapKey(key); len(errs) > 0 {
			return fmt.Errorf("%w: key %q: %s", ErrInvalidSecretName, key, strings.Join(errs, "; "))
		}

		b, err := os.ReadFile(p) //nolint:gosec // G304: Paths come from walking root.
		if err != nil {
			return fmt.Errorf("read %q: %w", p, err)
		}

		data[key] = b

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", root, err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %q contains no files", ErrEmptySecret, root)
	}

	return data, nil
}

// Save creates s, or replaces it if a secret with the same name exists. It
// reports whether an existing secret was replaced.
func Save(ctx context.Context, c *kube.Client, s *corev1.Secret) (bool, error) {
	api := c.Clientset.CoreV1().Secrets(c.Namespace)

	_, err := api.Create(ctx, s, metav1.CreateOptions{})
	if err == nil {
		return false, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return false, fmt.Errorf("create secret %q: %w", s.Name, err)
	}

	if _, err := api.Update(ctx, s, metav1.UpdateOptions{}); err != nil {
		return false, fmt.Errorf("update secret %q: %w", s.Name, err)
	}

	return true, nil
}

// DeleteOwned deletes every secret owned by owner and returns how many were
// deleted. Individual failures are logged and joined into the returned error
// without stopping the remaining deletions.
func DeleteOwned(ctx context.Context, c *kube.Client, owner string) (int, error) {
	bindings, err := Discover(ctx, c, owner)
	if err != nil {
		return 0, err
	}

	api := c.Clientset.CoreV1().Secrets(c.Namespace)
	logger := log.WithContext(ctx)

	var (
		deleted int
		errs    []error
	)

	for _, b := range bindings {
		err := api.Delete(ctx, b.SecretName, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			logger.WarnContext(ctx, "could not delete secret",
				slog.String("secret", b.SecretName),
				slog.Any("err", err),
			)
			errs = append(errs, fmt.Errorf("delete secret %q: %w", b.SecretName, err))

			continue
		}

		deleted++
	}

	return deleted, errors.Join(errs...)
}
