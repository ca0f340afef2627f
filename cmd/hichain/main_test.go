package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDemo(t *testing.T) {
	out, err := run(t, "demo")
	require.NoError(t, err, out)

	assert.Contains(t, out, `[phone] session 1: Bind with "lamp" succeeded`)
	assert.Contains(t, out, `[lamp] session 1: Bind with "phone" succeeded`)
	assert.Contains(t, out, `[phone] session 2: Auth with "lamp" succeeded`)
	assert.Contains(t, out, `[lamp] session 2: Auth with "phone" succeeded`)
	assert.Equal(t, 4, strings.Count(out, "fingerprint"))
}

func TestTrustListEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phone.yaml")
	cfg := "device: {auth_id: phone, user_type: controller, package_name: p, service_type: s}\n" +
		"storage: {path: " + filepath.Join(dir, "phone.db") + "}\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	out, err := run(t, "trust", "list", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "AUTH ID")

	_, err = run(t, "trust", "delete", "-c", path, "lamp")
	assert.Error(t, err)
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "trust", "list")
	assert.ErrorIs(t, err, errNoConfig)
}
