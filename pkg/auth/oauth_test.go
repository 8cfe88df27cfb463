package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/tasksync/pkg/logging"
)

func TestRedirectURL(t *testing.T) {
	logger := logging.Discard()
	cases := map[string]string{
		"":                                "http://localhost:6789/oauth2callback",
		"urn:ietf:wg:oauth:2.0:oob":       "http://localhost:6789/oauth2callback",
		"http://localhost":                "http://localhost:6789",
		"http://127.0.0.1:8080/callback":  "http://127.0.0.1:6789/callback",
		"http://localhost:6789/cb":        "http://localhost:6789/cb",
		"https://example.com/oauth2/done": "https://example.com/oauth2/done",
	}
	for in, want := range cases {
		assert.Equal(t, want, redirectURL(in, logger), "input %q", in)
	}
}

func TestGetConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	creds := `{"installed":{"client_id":"id","client_secret":"secret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`
	require.NoError(t, os.WriteFile(path, []byte(creds), 0600))

	cfg, err := GetConfig(path, Scopes, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.ClientID)
	assert.Equal(t, "http://localhost:6789", cfg.RedirectURL)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/tasks"}, cfg.Scopes)

	_, err = GetConfig(filepath.Join(t.TempDir(), "missing.json"), Scopes, logging.Discard())
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)}

	require.NoError(t, saveToken(path, tok))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := tokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))

	require.NoError(t, Reset(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, Reset(path), "resetting twice is fine")
}
