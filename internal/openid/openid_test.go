package openid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
	"github.com/emilythestrangee/uservoice/backend/internal/steam"
)

const (
	testRealm    = "https://voice.example"
	testReturnTo = "/auth/steam/verify"
	testSteamID  = uint64(76561198000000001)
)

type fakeChecker struct {
	status int
	err    error
	calls  []url.Values
}

func (f *fakeChecker) CheckAuthentication(_ context.Context, form url.Values) (int, error) {
	f.calls = append(f.calls, form)
	return f.status, f.err
}

type fakeResolver struct {
	user  models.User
	err   error
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, steamID uint64) (models.User, error) {
	f.calls++
	if f.err != nil {
		return models.User{}, f.err
	}
	u := f.user
	u.ID = steamID
	return u, nil
}

func newTestVerifier(checker *fakeChecker, resolver *fakeResolver) *Verifier {
	return New(Config{Realm: testRealm, ReturnTo: testReturnTo}, checker, resolver, nil)
}

func callback() url.Values {
	identity := fmt.Sprintf("https://steamcommunity.com/openid/id/%d", testSteamID)
	return url.Values{
		"openid.ns":             {Namespace},
		"openid.mode":           {"id_res"},
		"openid.op_endpoint":    {DefaultProviderURL},
		"openid.claimed_id":     {identity},
		"openid.identity":       {identity},
		"openid.return_to":      {testRealm + testReturnTo},
		"openid.response_nonce": {"2026-10-16T10:00:00Zabc"},
		"openid.assoc_handle":   {"1234567890"},
		"openid.signed":         {"signed,op_endpoint,claimed_id,identity,return_to,response_nonce,assoc_handle"},
		"openid.sig":            {"c2lnbmF0dXJl"},
	}
}

func TestBeginLogin(t *testing.T) {
	v := newTestVerifier(&fakeChecker{}, &fakeResolver{})

	target, err := url.Parse(v.BeginLogin())
	require.NoError(t, err)
	assert.Equal(t, "steamcommunity.com", target.Host)
	assert.Equal(t, "/openid/login", target.Path)

	q := target.Query()
	assert.Equal(t, Namespace, q.Get("openid.ns"))
	assert.Equal(t, "checkid_setup", q.Get("openid.mode"))
	assert.Equal(t, testRealm+testReturnTo, q.Get("openid.return_to"))
	assert.Equal(t, testRealm, q.Get("openid.realm"))
	assert.Equal(t, identifierSelect, q.Get("openid.identity"))
	assert.Equal(t, identifierSelect, q.Get("openid.claimed_id"))
}

func TestCompleteLoginSuccess(t *testing.T) {
	checker := &fakeChecker{status: http.StatusNoContent}
	resolver := &fakeResolver{user: models.User{Name: "gordon", Weight: 12}}
	v := newTestVerifier(checker, resolver)

	params := callback()
	user, err := v.CompleteLogin(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, testSteamID, user.ID)
	assert.Equal(t, "gordon", user.Name)

	require.Len(t, checker.calls, 1)
	relayed := checker.calls[0]
	assert.Equal(t, "check_authentication", relayed.Get("openid.mode"))
	for key := range params {
		if key == "openid.mode" {
			continue
		}
		assert.Equal(t, params[key], relayed[key], key)
	}
	assert.Len(t, relayed, len(params))
	assert.Equal(t, "id_res", params.Get("openid.mode"), "caller's params must not be mutated")
}

func TestCompleteLoginRejectsCallbacks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(url.Values)
		want   Code
	}{
		{"mode cancel", func(p url.Values) { p.Set("openid.mode", "cancel") }, CodeInternalError},
		{"mode missing", func(p url.Values) { p.Del("openid.mode") }, CodeInternalError},
		{"claimed id differs", func(p url.Values) {
			p.Set("openid.claimed_id", "https://steamcommunity.com/openid/id/76561198000000002")
		}, CodeInternalError},
		{"foreign op endpoint", func(p url.Values) { p.Set("openid.op_endpoint", "https://evil.example/openid/login") }, CodeInternalError},
		{"wrong namespace", func(p url.Values) { p.Set("openid.ns", "http://openid.net/signon/1.1") }, CodeInternalError},
		{"return to another realm", func(p url.Values) { p.Set("openid.return_to", "https://evil.example/auth/steam/verify") }, CodeInternalError},
		{"identity not a steam id", func(p url.Values) {
			p.Set("openid.identity", "https://steamcommunity.com/openid/id/12345")
			p.Set("openid.claimed_id", "https://steamcommunity.com/openid/id/12345")
		}, CodeAuthFailed},
		{"identity with wrong prefix", func(p url.Values) {
			p.Set("openid.identity", "https://steamcommunity.com/openid/id/86561198000000001")
			p.Set("openid.claimed_id", "https://steamcommunity.com/openid/id/86561198000000001")
		}, CodeAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &fakeChecker{status: http.StatusNoContent}
			resolver := &fakeResolver{}
			v := newTestVerifier(checker, resolver)

			params := callback()
			tt.mutate(params)
			_, err := v.CompleteLogin(context.Background(), params)
			require.Error(t, err)
			assert.Equal(t, tt.want, CodeOf(err))
			assert.Empty(t, checker.calls, "invalid callbacks must not reach steam")
			assert.Zero(t, resolver.calls)
		})
	}
}

func TestCompleteLoginRequiresProviderConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		checker *fakeChecker
	}{
		{"forbidden", &fakeChecker{status: http.StatusForbidden}},
		{"ok is not no content", &fakeChecker{status: http.StatusOK}},
		{"relay unauthorized", &fakeChecker{status: http.StatusUnauthorized}},
		{"relay unreachable", &fakeChecker{err: context.DeadlineExceeded}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{}
			v := newTestVerifier(tt.checker, resolver)

			_, err := v.CompleteLogin(context.Background(), callback())
			assert.Equal(t, CodeAuthFailed, CodeOf(err))
			assert.Zero(t, resolver.calls)
		})
	}
}

func TestCompleteLoginMapsResolverErrors(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{steam.ErrNoOwnership, CodeNoOwnership},
		{steam.ErrMissingRequiredDLCs, CodeMissingRequiredDLCs},
		{fmt.Errorf("%w: boom", steam.ErrUpstream), CodeSteamError},
		{errors.New("anything else"), CodeSteamError},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			v := newTestVerifier(&fakeChecker{status: http.StatusNoContent}, &fakeResolver{err: tt.err})
			_, err := v.CompleteLogin(context.Background(), callback())
			assert.Equal(t, tt.want, CodeOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInternalError, CodeOf(errors.New("plain")))
	wrapped := fmt.Errorf("callback: %w", &LoginError{Code: CodeNoOwnership, Err: steam.ErrNoOwnership})
	assert.Equal(t, CodeNoOwnership, CodeOf(wrapped))
}
