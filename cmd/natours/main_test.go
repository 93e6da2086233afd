// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "cmd-test-secret-0123456789abcdefghij"

// TestMain points XDG_CONFIG_HOME at an empty directory so a developer's
// own config file never leaks into the tests.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "natours-xdg")
	if err != nil {
		panic(err)
	}
	_ = os.Setenv("XDG_CONFIG_HOME", dir)
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "migrate", "seed", "certs"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"config", "env", "addr", "store", "database-url", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %q", name)
	}
}

// resolvedConfig runs "serve args..." with a RunE that only loads the
// configuration, and returns its store kind and address.
func resolvedConfig(t *testing.T, args ...string) string {
	t.Helper()
	var got string
	cmd := NewRootCmd()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	serve.RunE = func(c *cobra.Command, _ []string) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		got = cfg.Store.Kind + " " + cfg.HTTP.Addr
		return nil
	}
	cmd.SetArgs(append([]string{"serve"}, args...))
	require.NoError(t, cmd.Execute())
	return got
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("NATOURS_AUTH__JWT_SECRET", testJWTSecret)

	assert.Equal(t, "memory :9999", resolvedConfig(t, "--store", "memory", "--addr", ":9999"))
}

func TestLoadConfig_XDGFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("NATOURS_AUTH__JWT_SECRET", testJWTSecret)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "natours"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, "natours", "config.yaml"),
		[]byte("store:\n  kind: memory\nhttp:\n  addr: \":7000\"\n"), 0o600))

	assert.Equal(t, "memory :7000", resolvedConfig(t))
	assert.Equal(t, "memory :7001", resolvedConfig(t, "--addr", ":7001"), "flags beat the file")

	explicit := filepath.Join(t.TempDir(), "other.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("store:\n  kind: memory\nhttp:\n  addr: \":7002\"\n"), 0o600))
	assert.Equal(t, "memory :7002", resolvedConfig(t, "--config", explicit))
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("NATOURS_AUTH__JWT_SECRET", "short")

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"serve", "--store", "memory"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}
