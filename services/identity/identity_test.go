package identitysvc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	logsvc "github.com/trezcool/shule/services/logger"
)

const testAPIKey = "sk_test_123"

func publicKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestVerificationKey(t *testing.T) {
	tests := []struct {
		name    string
		conf    core.IdentityConfig
		wantAlg string
		wantErr bool
	}{
		{name: "shared secret", conf: core.IdentityConfig{JWTSecret: "s3cr3t"}, wantAlg: AlgorithmHS256},
		{name: "public key wins", conf: core.IdentityConfig{JWTSecret: "s3cr3t", JWTPublicKey: publicKeyPEM(t)}, wantAlg: AlgorithmRS256},
		{name: "bad public key", conf: core.IdentityConfig{JWTPublicKey: "not a pem"}, wantErr: true},
		{name: "nothing configured", conf: core.IdentityConfig{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alg, key, err := VerificationKey(tt.conf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAlg, alg)
			assert.NotNil(t, key)
		})
	}
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/users/user_2abc" || r.Header.Get("Authorization") != "Bearer "+testAPIKey {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(url string) *Client {
	return NewClient(core.IdentityConfig{APIURL: url, APIKey: testAPIKey}, logsvc.NewNopLogger())
}

const apiUserJSON = `{
	"id": "user_2abc",
	"first_name": "Jane",
	"last_name": "Doe",
	"image_url": "https://img.test/jane.png",
	"primary_email_address_id": "idn_2",
	"email_addresses": [
		{"id": "idn_1", "email_address": "old@test.cd"},
		{"id": "idn_2", "email_address": "jane@test.cd"}
	]
}`

func TestClient_FetchProfile(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, apiUserJSON)
		p, err := newTestClient(srv.URL).FetchProfile(context.Background(), "user_2abc")
		require.NoError(t, err)
		assert.Equal(t, user.Profile{
			Email:     "jane@test.cd",
			FirstName: "Jane",
			LastName:  "Doe",
			ImageURL:  "https://img.test/jane.png",
		}, p)
	})

	t.Run("unknown user", func(t *testing.T) {
		srv, calls := newTestServer(t, http.StatusOK, apiUserJSON)
		_, err := newTestClient(srv.URL).FetchProfile(context.Background(), "user_nobody")
		assert.Equal(t, ErrUnknownIdentity, err)
		assert.EqualValues(t, 1, atomic.LoadInt32(calls), "404 is not retried")
	})

	t.Run("server error is retried", func(t *testing.T) {
		srv, calls := newTestServer(t, http.StatusBadGateway, `{}`)
		_, err := newTestClient(srv.URL).FetchProfile(context.Background(), "user_2abc")
		assert.Error(t, err)
		assert.EqualValues(t, 4, atomic.LoadInt32(calls))
	})
}

func TestClient_ResolveProfile(t *testing.T) {
	known := user.Profile{Email: "jane@test.cd", FirstName: "Janet"}

	t.Run("merged", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, apiUserJSON)
		got := newTestClient(srv.URL).ResolveProfile(context.Background(), "user_2abc", known)
		assert.Equal(t, user.Profile{
			Email:     "jane@test.cd",
			FirstName: "Janet",
			LastName:  "Doe",
			ImageURL:  "https://img.test/jane.png",
		}, got)
	})

	t.Run("failures keep the known profile", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, apiUserJSON)
		got := newTestClient(srv.URL).ResolveProfile(context.Background(), "user_nobody", known)
		assert.Equal(t, known, got)
	})

	t.Run("complete profiles are not fetched", func(t *testing.T) {
		srv, calls := newTestServer(t, http.StatusOK, apiUserJSON)
		complete := known.Merge(user.Profile{LastName: "Doe", ImageURL: "https://img.test/x.png"})
		got := newTestClient(srv.URL).ResolveProfile(context.Background(), "user_2abc", complete)
		assert.Equal(t, complete, got)
		assert.Zero(t, atomic.LoadInt32(calls))
	})

	t.Run("disabled client", func(t *testing.T) {
		c := NewClient(core.IdentityConfig{}, logsvc.NewNopLogger())
		assert.Equal(t, known, c.ResolveProfile(context.Background(), "user_2abc", known))

		var nilClient *Client
		assert.Equal(t, known, nilClient.ResolveProfile(context.Background(), "user_2abc", known))
	})
}
