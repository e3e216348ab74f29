package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/resolvd/internal/config"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
)

func TestOpenStore_Memory(t *testing.T) {
	cfg := config.Default()

	store, ping, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &pattern.MemoryStore{}, store)
	assert.Nil(t, ping)
}

func TestOpenStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Store.Backend = config.StoreRedis
	cfg.Redis.Addr = mr.Addr()

	store, ping, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &pattern.RedisStore{}, store)
	require.NotNil(t, ping)
	assert.NoError(t, ping(context.Background()))
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Store.Backend = config.StoreRedis
	cfg.Redis.Addr = addr

	_, _, err := openStore(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to redis")
}

func TestLoadKnowledge(t *testing.T) {
	kb, err := loadKnowledge(config.KnowledgeConfig{})
	require.NoError(t, err)
	assert.True(t, kb.Has("DEADLOCK"))

	_, err = loadKnowledge(config.KnowledgeConfig{Path: "/nonexistent/kinds.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading knowledge base /nonexistent/kinds.yaml")
}

func TestNewScrubber(t *testing.T) {
	s, err := newScrubber(config.SecretsConfig{})
	require.NoError(t, err)
	assert.True(t, s.Scrub("password=hunter2").HasFindings())

	path := filepath.Join(t.TempDir(), "allow.toml")
	require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = ['^hunter2$']\n"), 0o600))
	s, err = newScrubber(config.SecretsConfig{AllowListPath: path})
	require.NoError(t, err)
	assert.False(t, s.Scrub("password=hunter2").HasFindings())

	require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = ['[']\n"), 0o600))
	_, err = newScrubber(config.SecretsConfig{AllowListPath: path})
	assert.Error(t, err)
}
