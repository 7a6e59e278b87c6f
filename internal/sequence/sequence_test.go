package sequence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqPath(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sequence")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return path
}

func TestCounter_FullCycle(t *testing.T) {
	c := Load(seqPath(t, ""), zerolog.Nop())
	require.Equal(t, 0, c.Current())

	for want := 1; want <= 998; want++ {
		got := c.Next()
		require.Equal(t, want, got)
	}
	assert.Equal(t, 0, c.Next(), "999th call wraps to 0")
	assert.Equal(t, 1, c.Next())
}

func TestCounter_NeverExceedsBound(t *testing.T) {
	c := Load(seqPath(t, "997"), zerolog.Nop())
	for i := 0; i < 3*Modulus; i++ {
		n := c.Next()
		require.GreaterOrEqual(t, n, 0)
		require.Less(t, n, Modulus)
	}
}

func TestCounter_PersistsEveryValue(t *testing.T) {
	path := seqPath(t, "")
	c := Load(path, zerolog.Nop())

	c.Next()
	c.Next()
	n := c.Next()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3\n", string(data))

	resumed := Load(path, zerolog.Nop())
	assert.Equal(t, n, resumed.Current())
	assert.Equal(t, 4, resumed.Next())
}

func TestCounter_ResumeAt998Wraps(t *testing.T) {
	c := Load(seqPath(t, "998\n"), zerolog.Nop())
	assert.Equal(t, 0, c.Next())
}

func TestCounter_CorruptStartsAtZero(t *testing.T) {
	for _, content := range []string{"garbage", "-4", "999", "12345", " "} {
		c := Load(seqPath(t, content), zerolog.Nop())
		assert.Equal(t, 0, c.Current(), "content %q", content)
		assert.Equal(t, 1, c.Next(), "content %q", content)
	}
}

func TestCounter_UnwritableKeepsCounting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "sequence")
	c := Load(path, zerolog.Nop())

	assert.Equal(t, 1, c.Next())
	assert.Equal(t, 2, c.Next())
	assert.NoFileExists(t, path)
}
