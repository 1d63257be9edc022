package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestServe_RejectsUnknownService(t *testing.T) {
	_, err := run(t, "serve", "billing")
	require.ErrorContains(t, err, "unknown service")
}

func TestMigrate_NeedsPostgres(t *testing.T) {
	_, err := run(t, "migrate", "up")
	require.ErrorContains(t, err, "postgres")
}

func TestPublish_RequiresKeyAndPayload(t *testing.T) {
	_, err := run(t, "publish", "--key", "post.created")
	require.ErrorContains(t, err, "--payload")
}

func TestPublish_MemoryFabric(t *testing.T) {
	out, err := run(t, "publish", "--key", "post.deleted", "--payload", `{"postId":"p1"}`)
	require.NoError(t, err)
	require.Contains(t, out, "published post.deleted")
}

func TestPublish_PayloadFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"postId":"p1","userId":"u1","content":"hello"}`), 0o600))
	out, err := run(t, "publish", "--key", "post.created", "--payload", "@"+p)
	require.NoError(t, err)
	require.Contains(t, out, "published post.created")
}

func TestPublish_RejectsBadPayload(t *testing.T) {
	_, err := run(t, "publish", "--key", "post.created", "--payload", `{"userId":"u1"}`)
	require.Error(t, err)
}

func TestConfigFlag_BadFile(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "publish", "--key", "post.created", "--payload", "{}")
	require.ErrorContains(t, err, "config")
}
