package realtime

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCredentialPrefersTicketQueryParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtm?ticket=abc123", nil)
	r.Header.Set("Authorization", "Bearer should-be-ignored")

	cred, ok := extractCredential(r)
	assert.True(t, ok)
	assert.Equal(t, "ticket", cred.kind)
	assert.Equal(t, "abc123", cred.value)
}

func TestExtractCredentialFallsBackToSubprotocol(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtm", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "json, bearer.tok-456")

	cred, ok := extractCredential(r)
	assert.True(t, ok)
	assert.Equal(t, "bearer", cred.kind)
	assert.Equal(t, "tok-456", cred.value)
}

func TestExtractCredentialFallsBackToAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtm", nil)
	r.Header.Set("Authorization", "Bearer tok-789")

	cred, ok := extractCredential(r)
	assert.True(t, ok)
	assert.Equal(t, "bearer", cred.kind)
	assert.Equal(t, "tok-789", cred.value)
}

func TestExtractCredentialFailsWithoutAny(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/rtm", nil)
	_, ok := extractCredential(r)
	assert.False(t, ok)
}

func TestOriginAllowedEmptyAllowlistAllowsEverything(t *testing.T) {
	assert.True(t, originAllowed(nil, "https://evil.example"))
	assert.True(t, originAllowed(nil, ""))
}

func TestOriginAllowedChecksAllowlistMembership(t *testing.T) {
	allow := []string{"https://good.example"}
	assert.True(t, originAllowed(allow, "https://good.example"))
	assert.False(t, originAllowed(allow, "https://evil.example"))
	assert.True(t, originAllowed(allow, ""), "a non-browser context has no Origin header")
}

func TestOriginAllowedWildcardEntry(t *testing.T) {
	assert.True(t, originAllowed([]string{"*"}, "https://anything.example"))
}
