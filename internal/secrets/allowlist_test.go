package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAllowList(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAllowList(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeAllowList(t, "[allowlist]\nregexes = ['^changeme$', 'example-password']\n")
		got, err := LoadAllowList(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"^changeme$", "example-password"}, got)
	})

	t.Run("missing file", func(t *testing.T) {
		got, err := LoadAllowList(filepath.Join(t.TempDir(), "nope.toml"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("bad toml", func(t *testing.T) {
		_, err := LoadAllowList(writeAllowList(t, "[allowlist\nregexes = "))
		assert.ErrorIs(t, err, ErrInvalidAllowList)
	})

	t.Run("bad regex", func(t *testing.T) {
		_, err := LoadAllowList(writeAllowList(t, "[allowlist]\nregexes = ['[open']\n"))
		assert.ErrorIs(t, err, ErrInvalidAllowList)
		assert.Contains(t, err.Error(), "regexes[0]")
	})

	t.Run("feeds scrubber", func(t *testing.T) {
		list, err := LoadAllowList(writeAllowList(t, "[allowlist]\nregexes = ['^changeme$']\n"))
		require.NoError(t, err)
		cfg := DefaultConfig()
		cfg.AllowList = append(cfg.AllowList, list...)
		r := MustNew(cfg).Scrub("password=changeme")
		assert.False(t, r.HasFindings())
	})
}
