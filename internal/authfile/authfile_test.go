package authfile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestLoadMissingFileMeansSignedOut(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "auth.json"))
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auth.json")

	in := &File{
		UserID: "user-1",
		Token: &oauth2.Token{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		},
		Meta: map[string]string{"email": "maija@example.com"},
	}

	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "user-1", out.UserID)
	assert.Equal(t, "refresh", out.Token.RefreshToken)
	assert.Equal(t, "maija@example.com", out.Meta["email"])
}

func TestSaveRestrictsPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	path := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, Save(path, &File{UserID: "user-1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.NotZero(t, dirInfo.Mode().Perm()&0o700)
}

func TestLoadRejectsFileWithoutUserID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"meta":{}}`), FilePerms))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing user_id")
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), FilePerms))

	_, err := Load(path)
	require.Error(t, err)
}

func TestProviderIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.json")

	p, err := NewProvider(path)
	require.NoError(t, err)

	_, ok := p.CurrentUserID()
	assert.False(t, ok)

	require.NoError(t, Save(path, &File{UserID: "user-1"}))

	p, err = NewProvider(path)
	require.NoError(t, err)

	id, ok := p.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)
}
