package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL(t *testing.T) {
	cases := map[string]time.Duration{
		"30s":  30 * time.Second,
		"45m":  45 * time.Minute,
		"8h":   8 * time.Hour,
		"2d":   48 * time.Hour,
		"":     DefaultTTL,
		"8":    DefaultTTL,
		"1w":   DefaultTTL,
		"h8":   DefaultTTL,
		" 3h ": 3 * time.Hour,
	}
	for raw, want := range cases {
		assert.Equal(t, want, TTL(raw), "TTL(%q)", raw)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "99999")
	_, err := Port("TEST_PORT", "8080")
	assert.Error(t, err)

	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8080")
	require.NoError(t, err)
	assert.Equal(t, "8080", p)
}

func TestScalarHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_DUR", "90")
	t.Setenv("TEST_LIST", " a, ,b ")

	assert.Equal(t, 12, Int("TEST_INT", 1))
	assert.Equal(t, 1, Int("TEST_MISSING", 1))

	t.Setenv("TEST_INT", "0")
	assert.Equal(t, 0, Int("TEST_INT", 1))
	t.Setenv("TEST_INT", "-3")
	assert.Equal(t, 1, Int("TEST_INT", 1))
	assert.True(t, Bool("TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, Duration("TEST_DUR", time.Second))
	assert.Equal(t, []string{"a", "b"}, List("TEST_LIST", ""))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BARBER_DOTENV_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("BARBER_DOTENV_KEY") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("BARBER_DOTENV_KEY"))
}
