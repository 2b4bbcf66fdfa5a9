package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradex-ops/tradexd/pkg/errors"
	"github.com/tradex-ops/tradexd/pkg/logging"
)

func TestManagerRoundtrip(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "run"), logging.NewNopLogger())

	require.NoError(t, manager.Write("dashboard_app", 12345))

	pid, err := manager.Read("dashboard_app")
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)

	require.NoError(t, manager.Remove("dashboard_app"))

	_, err = manager.Read("dashboard_app")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestManagerRemoveMissing(t *testing.T) {
	manager := NewManager(t.TempDir(), logging.NewNopLogger())
	assert.NoError(t, manager.Remove("never_written"))
}

func TestManagerReadInvalidContent(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(dir, logging.NewNopLogger())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.pid"), []byte("not-a-pid\n"), 0o644))

	_, err := manager.Read("bad")
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestManagerPath(t *testing.T) {
	manager := NewManager("/run/tradex", logging.NewNopLogger())
	assert.Equal(t, "/run/tradex/webhook_app.pid", manager.Path("webhook_app"))
}
