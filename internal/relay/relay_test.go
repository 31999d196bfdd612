package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const accessToken = "relay-access-token"

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeProvider answers check_authentication like Steam does, remembering
// every body it received.
type fakeProvider struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []string
	answer string
	status int
}

func newFakeProvider(t *testing.T, status int, answer string) *fakeProvider {
	t.Helper()
	p := &fakeProvider{answer: answer, status: status}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.bodies = append(p.bodies, string(body))
		p.mu.Unlock()
		w.WriteHeader(p.status)
		_, _ = io.WriteString(w, p.answer)
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.bodies...)
}

func newRelayServer(t *testing.T, provider *fakeProvider) *httptest.Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(accessToken), bcrypt.MinCost)
	require.NoError(t, err)

	r := gin.New()
	NewHandler(NewForwarder(provider.URL, provider.Client()), hash, nil).Register(r, "/relay/openid")
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestForwarderStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		answer string
		want   int
	}{
		{"valid", http.StatusOK, "ns:http://specs.openid.net/auth/2.0\nis_valid:true\n", http.StatusNoContent},
		{"invalid", http.StatusOK, "ns:http://specs.openid.net/auth/2.0\nis_valid:false\n", http.StatusForbidden},
		{"provider error with marker", http.StatusInternalServerError, "is_valid:true", http.StatusForbidden},
		{"empty", http.StatusOK, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider(t, tt.status, tt.answer)
			status, err := NewForwarder(provider.URL, provider.Client()).Forward(context.Background(), []byte("a=b"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestForwarderTransportError(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, "is_valid:true")
	provider.Close()

	_, err := NewForwarder(provider.URL, nil).Forward(context.Background(), []byte("a=b"))
	assert.Error(t, err)
}

func TestRelayEndToEnd(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, "is_valid:true\n")
	srv := newRelayServer(t, provider)

	form := url.Values{
		"openid.mode": {"check_authentication"},
		"openid.sig":  {"abc+/="},
	}
	status, err := NewClient(srv.URL+"/relay/openid", accessToken, srv.Client()).CheckAuthentication(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, []string{form.Encode()}, provider.received(), "body must be forwarded byte for byte")
}

func TestRelayRejectsInvalidAssertion(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, "is_valid:false\n")
	srv := newRelayServer(t, provider)

	status, err := NewClient(srv.URL+"/relay/openid", accessToken, srv.Client()).CheckAuthentication(context.Background(), url.Values{"a": {"b"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestRelayHandlerGuards(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, "is_valid:true")
	srv := newRelayServer(t, provider)

	tests := []struct {
		name   string
		method string
		auth   string
		want   int
	}{
		{"get", http.MethodGet, "Bearer " + accessToken, http.StatusMethodNotAllowed},
		{"put", http.MethodPut, "Bearer " + accessToken, http.StatusMethodNotAllowed},
		{"no credential", http.MethodPost, "", http.StatusUnauthorized},
		{"wrong credential", http.MethodPost, "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", http.MethodPost, "Basic " + accessToken, http.StatusUnauthorized},
		{"authorized", http.MethodPost, "Bearer " + accessToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+"/relay/openid", strings.NewReader("a=b"))
			require.NoError(t, err)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Len(t, provider.received(), 1, "only the authorized request reaches the provider")
}

func TestRelayProviderUnreachable(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, "is_valid:true")
	srv := newRelayServer(t, provider)
	provider.Close()

	status, err := NewClient(srv.URL+"/relay/openid", accessToken, srv.Client()).CheckAuthentication(context.Background(), url.Values{"a": {"b"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(srv.URL, accessToken, nil).CheckAuthentication(context.Background(), url.Values{})
	assert.Error(t, err)
}
