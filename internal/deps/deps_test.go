package deps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	names []string
	err   error
}

func (f fakeRegistry) Installed(context.Context) ([]string, error) {
	return f.names, f.err
}

func TestSet(t *testing.T) {
	s := NewSet("b", "a", "")
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has(""))
	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestDiscoverCombinesSources(t *testing.T) {
	prefix := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "opt", "openssl"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "opt", "README"), nil, 0644))

	lookPath := func(file string) (string, error) {
		if file == "cmake" {
			return "/usr/bin/cmake", nil
		}
		return "", errors.New("not found")
	}

	got := Discover(context.Background(), Options{
		Available:     []string{"readline"},
		Candidates:    []string{"cmake", "ninja"},
		SearchPath:    true,
		InstallPrefix: prefix,
		PrefixOpt:     true,
		Registry:      fakeRegistry{names: []string{"xrootd"}},
		LookPath:      lookPath,
	})

	assert.Equal(t, []string{"cmake", "openssl", "readline", "xrootd"}, got.Names())
}

func TestDiscoverSourcesCanBeDisabled(t *testing.T) {
	prefix := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "opt", "openssl"), 0755))

	got := Discover(context.Background(), Options{
		Candidates:    []string{"sh"},
		InstallPrefix: prefix,
	})
	assert.Empty(t, got.Names())
}

func TestDiscoverRegistryErrorIsNotFatal(t *testing.T) {
	got := Discover(context.Background(), Options{
		Available: []string{"cmake"},
		Registry:  fakeRegistry{err: errors.New("locked")},
	})
	assert.Equal(t, []string{"cmake"}, got.Names())
}

func TestDiscoverFindsRealCommands(t *testing.T) {
	got := Discover(context.Background(), Options{
		Candidates: []string{"sh", "definitely-not-a-command-xyz"},
		SearchPath: true,
	})
	assert.True(t, got.Has("sh"))
	assert.False(t, got.Has("definitely-not-a-command-xyz"))
}
