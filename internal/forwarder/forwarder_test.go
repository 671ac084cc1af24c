package forwarder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastClient(url, key string) *Client {
	return New(url, key).WithRetry(2, time.Millisecond, time.Millisecond)
}

func TestForwardSendsPayloadAndAuth(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := "user-123"
	c := fastClient(srv.URL, "secret-token")
	err := c.Forward(context.Background(), Payload{UserID: &u, BatchedMessageCount: 7})
	require.NoError(t, err)

	require.Equal(t, "Bearer secret-token", gotAuth)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, map[string]any{
		"user_id":               "user-123",
		"batched_message_count": float64(7),
	}, gotBody)
}

func TestForwardNullUser(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := fastClient(srv.URL, "k").Forward(context.Background(), Payload{BatchedMessageCount: 1})
	require.NoError(t, err)
	require.Contains(t, gotBody, "user_id")
	require.Nil(t, gotBody["user_id"])
}

func TestForwardRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := fastClient(srv.URL, "k").Forward(context.Background(), Payload{BatchedMessageCount: 2})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestForwardStopsAfterAttemptBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := fastClient(srv.URL, "k").Forward(context.Background(), Payload{BatchedMessageCount: 2})
	require.Error(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestForwardNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := fastClient(srv.URL, "k").Forward(context.Background(), Payload{BatchedMessageCount: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestSafeForwardSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := fastClient(srv.URL, "k")
	// Must return normally even though every attempt fails.
	c.SafeForward(context.Background(), Payload{BatchedMessageCount: 5})

	// Same when the endpoint is unreachable.
	srv.Close()
	c.SafeForward(context.Background(), Payload{BatchedMessageCount: 5})
}
