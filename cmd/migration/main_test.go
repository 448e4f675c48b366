package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSteps(t *testing.T) {
	steps, err := parseSteps(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)

	steps, err = parseSteps([]string{" 3 "})
	require.NoError(t, err)
	assert.Equal(t, 3, steps)

	_, err = parseSteps([]string{"0"})
	assert.Error(t, err)
	_, err = parseSteps([]string{"many"})
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	version, err := parseVersion([]string{"1791133200"})
	require.NoError(t, err)
	assert.Equal(t, uint(1791133200), version)

	_, err = parseVersion(nil)
	assert.Error(t, err)
	_, err = parseVersion([]string{"-1"})
	assert.Error(t, err)
}

func TestResolveMigrationsDir(t *testing.T) {
	dir := t.TempDir()

	got, err := resolveMigrationsDir(dir, []string{"./does-not-exist"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), got)

	_, err = resolveMigrationsDir("", []string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
