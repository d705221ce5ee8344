package entrystore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeEntry(t *testing.T, path string, e Entry) {
	t.Helper()
	data, err := yaml.Marshal(e)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func readEntry(t *testing.T, path string) Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var e Entry
	require.NoError(t, yaml.Unmarshal(data, &e))
	return e
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.yaml")
	writeEntry(t, path, Entry{Username: "a@b.c", Password: "pw", RefreshToken: "r1"})

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Entry{Username: "a@b.c", Password: "pw", RefreshToken: "r1"}, s.Entry())
	assert.Equal(t, path, s.Path())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("username: [unterminated"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestOpen_CreatesFromSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "entry.yaml")

	s, err := Open(path, Entry{Username: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", s.Entry().Username)

	assert.Equal(t, Entry{Username: "a@b.c", Password: "pw"}, readEntry(t, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestOpen_EmptyFileSeeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Entry{}, s.Entry())

	s, err = Open(path, Entry{Username: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, Entry{Username: "a@b.c", Password: "pw"}, s.Entry())
	assert.Equal(t, Entry{Username: "a@b.c", Password: "pw"}, readEntry(t, path))
}

func TestOpen_MissingCredentials(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "entry.yaml"), Entry{Username: "a@b.c"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestOpen_SeedOverridesFile(t *testing.T) {
	tests := []struct {
		name string
		seed Entry
		want Entry
	}{
		{
			name: "empty seed keeps file",
			seed: Entry{},
			want: Entry{Username: "a@b.c", Password: "pw", RefreshToken: "r1"},
		},
		{
			name: "new password keeps token",
			seed: Entry{Password: "new"},
			want: Entry{Username: "a@b.c", Password: "new", RefreshToken: "r1"},
		},
		{
			name: "username case change keeps token",
			seed: Entry{Username: "A@B.C"},
			want: Entry{Username: "A@B.C", Password: "pw", RefreshToken: "r1"},
		},
		{
			name: "new username drops token",
			seed: Entry{Username: "x@y.z", Password: "pw2"},
			want: Entry{Username: "x@y.z", Password: "pw2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "entry.yaml")
			writeEntry(t, path, Entry{Username: "a@b.c", Password: "pw", RefreshToken: "r1"})

			s, err := Open(path, tt.seed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Entry())
			assert.Equal(t, tt.want, readEntry(t, path))
		})
	}
}

func TestUpdateRefreshToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.yaml")
	s, err := Open(path, Entry{Username: "a@b.c", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateRefreshToken("r2"))
	assert.Equal(t, "r2", readEntry(t, path).RefreshToken)

	// Reloading sees the rotated token.
	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "r2", reloaded.Entry().RefreshToken)

	// No temp files are left behind.
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestUpdateRefreshToken_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.yaml")
	s, err := Open(path, Entry{Username: "a@b.c", Password: "pw"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.UpdateRefreshToken(string(rune('a'+i))))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, s.Entry().RefreshToken, readEntry(t, path).RefreshToken)
}
