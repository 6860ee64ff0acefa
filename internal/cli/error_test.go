package cli_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/charmbracelet/fang"
	"github.com/stretchr/testify/assert"

	"github.com/macropower/k8r/internal/cli"
	"github.com/macropower/k8r/pkg/names"
	"github.com/macropower/k8r/pkg/workload"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		err      error
		wantHint string
	}{
		"usage": {
			err:      errors.New("unknown flag: --nope"),
			wantHint: "--help",
		},
		"name conflict": {
			err:      fmt.Errorf("workload name: %w", names.ErrNameConflict),
			wantHint: "--rm",
		},
		"running pods": {
			err:      fmt.Errorf("%w: job has 1 running pod(s)", workload.ErrPodsRunning),
			wantHint: "--force",
		},
		"other": {
			err: errors.New("connection refused"),
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			cli.ErrorHandler(&buf, fang.Styles{}, tc.err)

			assert.Contains(t, buf.String(), tc.err.Error())
			if tc.wantHint != "" {
				assert.Contains(t, buf.String(), "Try")
				assert.Contains(t, buf.String(), tc.wantHint)
			} else {
				assert.NotContains(t, buf.String(), "Try")
			}
		})
	}
}
