package licenseapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "droppy/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		Endpoint:  srv.URL,
		ProductID: "prod_123",
		Timeout:   5 * time.Second,
	}, nil)

	return client, srv
}

func TestVerifySendsFormFields(t *testing.T) {
	var gotForm map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"license_key":          r.PostFormValue("license_key"),
			"increment_uses_count": r.PostFormValue("increment_uses_count"),
			"decrement_uses_count": r.PostFormValue("decrement_uses_count"),
			"product_id":           r.PostFormValue("product_id"),
		}
		json.NewEncoder(w).Encode(VerifyResponse{Success: true, Purchase: &Purchase{Uses: 1}})
	})

	_, err := client.Verify(context.Background(), "KEY123", true, false)
	require.NoError(t, err)

	assert.Equal(t, "KEY123", gotForm["license_key"])
	assert.Equal(t, "true", gotForm["increment_uses_count"])
	assert.Empty(t, gotForm["decrement_uses_count"])
	assert.Equal(t, "prod_123", gotForm["product_id"])
}

func TestVerifyDecrementFlag(t *testing.T) {
	var decrement string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		decrement = r.PostFormValue("decrement_uses_count")
		json.NewEncoder(w).Encode(VerifyResponse{Success: true})
	})

	_, err := client.Verify(context.Background(), "KEY123", false, true)
	require.NoError(t, err)
	assert.Equal(t, "true", decrement)
}

func TestVerifyUsesPermalinkWhenNoProductID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "droppy", r.PostFormValue("product_permalink"))
		assert.Empty(t, r.PostFormValue("product_id"))
		json.NewEncoder(w).Encode(VerifyResponse{Success: true})
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL, ProductPermalink: "droppy"}, nil)
	_, err := client.Verify(context.Background(), "KEY123", false, false)
	require.NoError(t, err)
}

func TestVerifyServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		// A parseable body must not mask the 5xx
		json.NewEncoder(w).Encode(VerifyResponse{Success: true})
	})

	_, err := client.Verify(context.Background(), "KEY123", false, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServer)
}

func TestVerifyMalformedJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.Verify(context.Background(), "KEY123", false, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServer)
}

func TestVerifyNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // unreachable

	client := NewClient(Config{Endpoint: srv.URL, ProductID: "prod_123"}, nil)
	_, err := client.Verify(context.Background(), "KEY123", false, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
}

func TestIsValidPurchase(t *testing.T) {
	tests := []struct {
		name string
		resp VerifyResponse
		want bool
	}{
		{
			name: "valid purchase",
			resp: VerifyResponse{Success: true, Purchase: &Purchase{Email: "a@b.com"}},
			want: true,
		},
		{
			name: "unsuccessful",
			resp: VerifyResponse{Success: false, Purchase: &Purchase{}},
			want: false,
		},
		{
			name: "no purchase",
			resp: VerifyResponse{Success: true},
			want: false,
		},
		{
			name: "refunded",
			resp: VerifyResponse{Success: true, Purchase: &Purchase{Refunded: true}},
			want: false,
		},
		{
			name: "disputed",
			resp: VerifyResponse{Success: true, Purchase: &Purchase{Disputed: true}},
			want: false,
		},
		{
			name: "chargebacked",
			resp: VerifyResponse{Success: true, Purchase: &Purchase{Chargebacked: true}},
			want: false,
		},
		{
			name: "ended subscription",
			resp: VerifyResponse{Success: true, Purchase: &Purchase{SubscriptionEndedAt: "2026-01-01T00:00:00Z"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resp.IsValidPurchase())
		})
	}
}

func TestClaimAndCompensate(t *testing.T) {
	uses := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostFormValue("increment_uses_count") == "true" {
			uses++
		}
		if r.PostFormValue("decrement_uses_count") == "true" {
			uses--
		}
		json.NewEncoder(w).Encode(VerifyResponse{Success: true, Purchase: &Purchase{Uses: uses}})
	})

	token, err := client.Claim(context.Background(), "KEY123")
	require.NoError(t, err)
	assert.Equal(t, 1, uses)
	assert.Equal(t, 1, token.Response.Purchase.Uses)

	require.NoError(t, token.Compensate(context.Background()))
	assert.Equal(t, 0, uses)

	// Compensation is idempotent per token
	require.NoError(t, token.Compensate(context.Background()))
	assert.Equal(t, 0, uses)
}
