package trialapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "droppy/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:     srv.URL,
		APIKey:      "secret-key",
		AppBundleID: "com.droppy.app",
		AppVersion:  "1.4.0",
		Timeout:     5 * time.Second,
	}, nil)
}

func TestRequestSendsJSONBody(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		json.NewEncoder(w).Encode(map[string]any{"active": true})
	})

	resp, err := client.Request(context.Background(), ActionStart, "device-1", "hash-1")
	require.NoError(t, err)
	assert.True(t, resp.Active)

	assert.Equal(t, "/start", gotPath)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "device-1", gotBody.DeviceID)
	assert.Equal(t, "hash-1", gotBody.AccountHash)
	assert.Equal(t, "com.droppy.app", gotBody.AppBundleID)
	assert.Equal(t, "1.4.0", gotBody.AppVersion)
}

func TestRequestStatusAction(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"consumed": true})
	})

	resp, err := client.Request(context.Background(), ActionStatus, "device-1", "")
	require.NoError(t, err)
	assert.True(t, resp.Consumed)
	assert.Equal(t, "/status", gotPath)
}

func TestRequestNoAPIKeyOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := client.Request(context.Background(), ActionStatus, "device-1", "")
	require.NoError(t, err)
}

func TestRequestNon2xxIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		// A parseable body must not mask the failure status
		json.NewEncoder(w).Encode(map[string]any{"active": true})
	})

	_, err := client.Request(context.Background(), ActionStatus, "device-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServer)
}

func TestRequestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // unreachable

	client := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := client.Request(context.Background(), ActionStart, "device-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
}

func TestRequestMalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.Request(context.Background(), ActionStatus, "device-1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServer)
}

func TestIsEligible(t *testing.T) {
	yes, no := true, false

	assert.True(t, (&Response{}).IsEligible(), "absent field defaults to eligible")
	assert.True(t, (&Response{Eligible: &yes}).IsEligible())
	assert.False(t, (&Response{Eligible: &no}).IsEligible())
}

func TestFlexTimeFormats(t *testing.T) {
	want := time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		json string
	}{
		{"integer epoch", `1773577800`},
		{"fractional epoch", `1773577800.0`},
		{"epoch as string", `"1773577800"`},
		{"iso8601", `"2026-03-15T12:30:00Z"`},
		{"iso8601 no zone", `"2026-03-15T12:30:00"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ft FlexTime
			require.NoError(t, json.Unmarshal([]byte(tt.json), &ft))
			assert.True(t, want.Equal(ft.Time), "got %v", ft.Time)
		})
	}
}

func TestFlexTimeFractionalPrecision(t *testing.T) {
	var ft FlexTime
	require.NoError(t, json.Unmarshal([]byte(`1773577800.5`), &ft))
	assert.Equal(t, 500*time.Millisecond, time.Duration(ft.Nanosecond()))
}

func TestFlexTimeNullAndEmpty(t *testing.T) {
	var ft FlexTime
	require.NoError(t, json.Unmarshal([]byte(`null`), &ft))
	assert.True(t, ft.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`""`), &ft))
	assert.True(t, ft.IsZero())
}

func TestFlexTimeInvalid(t *testing.T) {
	var ft FlexTime
	assert.Error(t, json.Unmarshal([]byte(`"next tuesday"`), &ft))
}

func TestFlexTimeResponseRoundTrip(t *testing.T) {
	body := `{
		"active": true,
		"consumed": false,
		"started_at": 1773577800.25,
		"expires_at": "2026-03-18T12:30:00Z",
		"server_now": 1773577800,
		"message": "Trial started."
	}`

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	assert.True(t, resp.Active)
	assert.Equal(t, "Trial started.", resp.Message)
	assert.Equal(t, 2026, resp.StartedAt.Year())
	assert.Equal(t, time.Date(2026, 3, 18, 12, 30, 0, 0, time.UTC), resp.ExpiresAt.Time)
	assert.False(t, resp.ServerNow.IsZero())
}
