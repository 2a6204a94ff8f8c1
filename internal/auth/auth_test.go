package auth

import (
	"bytes"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCreds struct {
	mu       sync.Mutex
	values   map[string]string
	saveErr  error
	failKey  string // only this key fails to save when set
	clearErr error
}

func newMemCreds() *memCreds {
	return &memCreds{values: map[string]string{}}
}

func (m *memCreds) SaveCredential(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil && (m.failKey == "" || m.failKey == key) {
		return m.saveErr
	}
	m.values[key] = value
	return nil
}

func (m *memCreds) LoadCredential(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memCreds) ClearCredentials() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	m.values = map[string]string{}
	return nil
}

var testConfig = Config{
	ClientID:     "client-123",
	RedirectURI:  "beebar://oauth/callback",
	AuthorizeURL: "https://www.beeminder.com/apps/authorize",
}

func TestBuildAuthorizeURL(t *testing.T) {
	raw, err := testConfig.BuildAuthorizeURL()
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.beeminder.com", u.Host)
	assert.Equal(t, "client-123", u.Query().Get("client_id"))
	assert.Equal(t, "beebar://oauth/callback", u.Query().Get("redirect_uri"))
	assert.Equal(t, "token", u.Query().Get("response_type"))

	_, err = Config{AuthorizeURL: testConfig.AuthorizeURL}.BuildAuthorizeURL()
	assert.Error(t, err)
}

func TestParseCallback(t *testing.T) {
	s, err := ParseCallback("beebar://oauth/callback?access_token=abc&username=alice")
	require.NoError(t, err)
	assert.Equal(t, Session{AccessToken: "abc", Username: "alice"}, s)

	_, err = ParseCallback("beebar://oauth/callback?username=alice")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ParseCallback("beebar://oauth/callback?access_token=abc")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = ParseCallback("::not a url")
	assert.ErrorIs(t, err, ErrInvalidCallback)
}

func TestLoginSuccessPersistsCredentials(t *testing.T) {
	creds := newMemCreds()
	a := NewAuthenticator(testConfig, creds, nil)
	assert.False(t, a.Authenticated())

	_, result, err := a.Begin()
	require.NoError(t, err)
	assert.True(t, a.Authenticating())

	require.NoError(t, a.Complete("beebar://oauth/callback?access_token=abc&username=alice"))

	r := <-result
	assert.NoError(t, r.Err)
	assert.Equal(t, "alice", r.Username)
	assert.True(t, a.Authenticated())
	assert.False(t, a.Authenticating())

	tok, ok := a.Token()
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)
	assert.Equal(t, "alice", creds.values[KeyUsername])
}

func TestLoginMissingTokenPersistsNothing(t *testing.T) {
	creds := newMemCreds()
	a := NewAuthenticator(testConfig, creds, nil)

	_, result, err := a.Begin()
	require.NoError(t, err)

	err = a.Complete("beebar://oauth/callback?username=alice")
	assert.ErrorIs(t, err, ErrMissingToken)

	r := <-result
	assert.ErrorIs(t, r.Err, ErrMissingToken)
	assert.False(t, a.Authenticating(), "authenticating flag must reset")
	assert.False(t, a.Authenticated())
	assert.ErrorIs(t, a.Err(), ErrMissingToken)
	assert.Empty(t, creds.values, "no credential may be persisted")

	_, ok := a.Token()
	assert.False(t, ok)
}

func TestLoginSaveFailure(t *testing.T) {
	creds := newMemCreds()
	creds.saveErr = errors.New("disk full")
	a := NewAuthenticator(testConfig, creds, nil)

	_, result, err := a.Begin()
	require.NoError(t, err)
	err = a.Complete("beebar://oauth/callback?access_token=abc&username=alice")
	assert.ErrorIs(t, err, ErrCredentialSave)
	assert.ErrorIs(t, (<-result).Err, ErrCredentialSave)
	assert.False(t, a.Authenticated())
}

func TestLoginRollbackFailureIsLogged(t *testing.T) {
	creds := newMemCreds()
	creds.saveErr = errors.New("disk full")
	creds.failKey = KeyUsername
	creds.clearErr = errors.New("database locked")
	var buf bytes.Buffer
	a := NewAuthenticator(testConfig, creds, slog.New(slog.NewTextHandler(&buf, nil)))

	_, _, err := a.Begin()
	require.NoError(t, err)
	err = a.Complete("beebar://oauth/callback?access_token=abc&username=alice")
	assert.ErrorIs(t, err, ErrCredentialSave)
	assert.False(t, a.Authenticated())
	assert.Contains(t, buf.String(), `msg="roll back credentials"`)
	assert.Contains(t, buf.String(), "database locked")
}

func TestResultDeliveredOnce(t *testing.T) {
	a := NewAuthenticator(testConfig, newMemCreds(), nil)
	_, result, err := a.Begin()
	require.NoError(t, err)

	require.NoError(t, a.Complete("beebar://oauth/callback?access_token=abc&username=alice"))
	assert.ErrorIs(t, a.Complete("beebar://oauth/callback?access_token=x&username=y"), ErrNoFlow)

	_, open := <-result
	assert.True(t, open)
	_, open = <-result
	assert.False(t, open, "channel closes after the single result")
}

func TestBeginSupersedesPendingFlow(t *testing.T) {
	a := NewAuthenticator(testConfig, newMemCreds(), nil)
	_, first, err := a.Begin()
	require.NoError(t, err)
	_, second, err := a.Begin()
	require.NoError(t, err)

	assert.ErrorIs(t, (<-first).Err, ErrNoFlow)

	a.Cancel()
	assert.ErrorIs(t, (<-second).Err, ErrNoFlow)
	assert.False(t, a.Authenticating())
}

func TestRestoresSessionAndLogout(t *testing.T) {
	creds := newMemCreds()
	creds.values[KeyAccessToken] = "abc"
	creds.values[KeyUsername] = "alice"

	a := NewAuthenticator(testConfig, creds, nil)
	assert.True(t, a.Authenticated())
	assert.Equal(t, "alice", a.Username())

	require.NoError(t, a.Logout())
	assert.False(t, a.Authenticated())
	_, ok := a.Token()
	assert.False(t, ok)
}
