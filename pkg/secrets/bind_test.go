package secrets_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/macropower/k8r/pkg/kube"
	"github.com/macropower/k8r/pkg/log"
	"github.com/macropower/k8r/pkg/secrets"
)

const ns = "work"

func ownedSecret(owner, logical string, keys ...string) *corev1.Secret {
	data := map[string][]byte{}
	for _, k := range keys {
		data[k] = []byte("v-" + k)
	}

	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      secrets.FullName(owner, logical),
			Namespace: ns,
			Labels:    kube.SecretLabels(owner, logical),
		},
		Data: data,
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	c := kube.NewClient(fake.NewClientset(
		ownedSecret("train", "db", "user", "password"),
		ownedSecret("train", "api", "token"),
		ownedSecret("other", "db", "user"),
		&corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: "unrelated", Namespace: ns}},
	), ns)

	got, err := secrets.Discover(t.Context(), c, "train")
	require.NoError(t, err)

	assert.Equal(t, []secrets.Binding{
		{LogicalName: "api", SecretName: "train-api", DataKeys: []string{"token"}},
		{LogicalName: "db", SecretName: "train-db", DataKeys: []string{"password", "user"}},
	}, got)
}

func TestApply_TwoSecretsTwoKeys(t *testing.T) {
	t.Parallel()

	bindings := []secrets.Binding{
		{LogicalName: "db", SecretName: "train-db", DataKeys: []string{"db-user", "db.password"}},
		{LogicalName: "api", SecretName: "train-api", DataKeys: []string{"api-token", "api.url"}},
	}

	var (
		c       = corev1.Container{Name: "runner"}
		volumes []corev1.Volume
	)

	for _, b := range bindings {
		secrets.Apply(t.Context(), b, &c, &volumes)
	}

	assert.Len(t, volumes, 2)
	assert.Len(t, c.VolumeMounts, 4)
	require.Len(t, c.Env, 4)

	envNames := make([]string, 0, len(c.Env))
	for _, e := range c.Env {
		envNames = append(envNames, e.Name)
		require.NotNil(t, e.ValueFrom)
		require.NotNil(t, e.ValueFrom.SecretKeyRef)
		assert.Empty(t, e.Value)
	}

	assert.Equal(t, []string{"DB_USER", "DB_PASSWORD", "API_TOKEN", "API_URL"}, envNames)

	assert.Equal(t, corev1.VolumeMount{
		Name:      "secret-db",
		MountPath: "/k8r/secrets/db-user",
		SubPath:   "db-user",
		ReadOnly:  true,
	}, c.VolumeMounts[0])
}

func TestApply_Idempotent(t *testing.T) {
	t.Parallel()

	b := secrets.Binding{LogicalName: "db", SecretName: "train-db", DataKeys: []string{"A", "B"}}

	var (
		c       corev1.Container
		volumes []corev1.Volume
	)

	secrets.Apply(t.Context(), b, &c, &volumes)
	secrets.Apply(t.Context(), b, &c, &volumes)

	require.Len(t, volumes, 1)
	assert.Equal(t, "train-db", volumes[0].Secret.SecretName)
	assert.Len(t, c.VolumeMounts, 2)
	assert.Len(t, c.Env, 2)
}

func TestApply_SharedKeyWarns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := log.NewContext(t.Context(), slog.New(slog.NewTextHandler(&buf, nil)))

	var (
		c       corev1.Container
		volumes []corev1.Volume
	)

	secrets.Apply(ctx, secrets.Binding{LogicalName: "db", SecretName: "train-db", DataKeys: []string{"token"}}, &c, &volumes)
	assert.Empty(t, buf.String())

	secrets.Apply(ctx, secrets.Binding{LogicalName: "api", SecretName: "train-api", DataKeys: []string{"token"}}, &c, &volumes)

	require.Len(t, c.VolumeMounts, 1)
	require.Len(t, c.Env, 1)
	assert.Equal(t, "train-db", c.Env[0].ValueFrom.SecretKeyRef.Name)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "key=token")
	assert.Contains(t, out, "secret=train-api")
	assert.Contains(t, out, "provided_by=train-db")
}

func TestApply_SharedLogicalName(t *testing.T) {
	t.Parallel()

	var (
		c       corev1.Container
		volumes []corev1.Volume
	)

	secrets.Apply(t.Context(), secrets.Binding{LogicalName: "db", SecretName: "a-db", DataKeys: []string{"x"}}, &c, &volumes)
	secrets.Apply(t.Context(), secrets.Binding{LogicalName: "db", SecretName: "b-db", DataKeys: []string{"y"}}, &c, &volumes)

	require.Len(t, volumes, 2)
	assert.Equal(t, "secret-db", volumes[0].Name)
	assert.Equal(t, "secret-b-db", volumes[1].Name)
	assert.Equal(t, "secret-b-db", c.VolumeMounts[1].Name)
}

func TestEnvName(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		key  string
		want string
	}{
		"plain":      {key: "token", want: "TOKEN"},
		"dashes":     {key: "api-key", want: "API_KEY"},
		"dots":       {key: "config.json", want: "CONFIG_JSON"},
		"underscore": {key: "already_ok", want: "ALREADY_OK"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, secrets.EnvName(tc.key))
		})
	}
}

func TestVolumeName(t *testing.T) {
	t.Parallel()

	long := secrets.VolumeName("An Extremely Long Secret Name That Will Not Fit In A Volume Name At All")
	assert.LessOrEqual(t, len(long), 63)
	assert.Equal(t, "secret-db", secrets.VolumeName("DB"))
}
