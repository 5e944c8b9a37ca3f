package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/ipfs-simple/client"
	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/noderegistry"

	_ "xdao.co/ipfs-simple/storage/memnode"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ipfs-simple.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `{"api":"http://127.0.0.1:5001/api/v0","timeout":"30s"}`))
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:5001/api/v0", cfg.API)
	d, err := cfg.Budget()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, d)

	_, err = LoadFile("")
	require.Error(t, err)
	_, err = LoadFile(writeConfig(t, `{"api":`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"empty", Config{}, true},
		{"api", Config{API: "http://h/api/v0/"}, true},
		{"node", Config{Node: &NodeConfig{Name: "memory"}}, true},
		{"both", Config{API: "http://h/", Node: &NodeConfig{Name: "memory"}}, false},
		{"unnamed node", Config{Node: &NodeConfig{}}, false},
		{"bad timeout", Config{Timeout: "soon"}, false},
		{"negative timeout", Config{Timeout: "-1s"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestApply_Remote(t *testing.T) {
	cfg := Config{API: "http://127.0.0.1:5002/api/v0"}
	opts, err := cfg.ClientOptions(client.Options{}, noderegistry.UsageLibrary)
	require.NoError(t, err)
	c := client.New(opts)

	require.NoError(t, cfg.Apply(context.Background(), c))
	b := c.Backend()
	require.Equal(t, client.ModeRemote, b.Mode)
	require.Equal(t, "http://127.0.0.1:5002/api/v0/", b.BaseURL)
}

func TestApply_MemoryNode(t *testing.T) {
	cfg := Config{Timeout: "5s", Node: &NodeConfig{Name: "memory", Config: map[string]string{
		"memory-listen": "/ip4/127.0.0.1/tcp/4001",
	}}}
	opts, err := cfg.ClientOptions(client.Options{Logger: zaptest.NewLogger(t)}, noderegistry.UsageLibrary)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, opts.Timeout)

	c := client.New(opts)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.NoError(t, cfg.Apply(ctx, c))
	require.Equal(t, client.ModeEmbedded, c.Backend().Mode)

	id, err := c.PublishBytes(ctx, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "bafkreibm6jg3ux5qumhcn2b3flc3tyu6dmlb4xa7u5bf44yegnrjhc4yeq", id)

	ident, err := c.Identify(ctx)
	require.NoError(t, err)
	require.Len(t, ident["addresses"], 1)
}

func TestApply_UnknownNode(t *testing.T) {
	cfg := Config{Node: &NodeConfig{Name: "does-not-exist"}}
	opts, err := cfg.ClientOptions(client.Options{}, noderegistry.UsageLibrary)
	require.NoError(t, err)
	c := client.New(opts)

	err = cfg.Apply(context.Background(), c)
	require.True(t, storage.IsKind(err, storage.KindBackend), "got %v", err)
	require.Equal(t, client.ModeUnbound, c.Backend().Mode)
}
