package edit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aprstar/pkg/config"
)

func TestEnsure_WritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "aprstar", "config.toml")
	require.NoError(t, ensure(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplate, string(data))
}

func TestEnsure_KeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[APRS]\ncall = \"W6BSD\"\n"), 0644))
	require.NoError(t, ensure(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[APRS]\ncall = \"W6BSD\"\n", string(data))
}

func TestDefaultTemplate_Resolves(t *testing.T) {
	locate := func(ctx context.Context) (float64, float64, error) { return 37.7749, -122.4194, nil }
	cfg, err := config.Resolve(context.Background(), []byte(DefaultTemplate), locate, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "N0CALL-1", cfg.Callsign)
	assert.Equal(t, "13023", cfg.Passcode)
	assert.Equal(t, 600*time.Second, cfg.ReportInterval)
	assert.Equal(t, "rotate.aprs2.net:14580", cfg.Addr())
	assert.InDelta(t, 37.7749, cfg.Latitude, 1e-9)
}

func TestFindEditor_PrefersEnv(t *testing.T) {
	t.Setenv("EDITOR", "myeditor")
	assert.Equal(t, "myeditor", findEditor())
}
