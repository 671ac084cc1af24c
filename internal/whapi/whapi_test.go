package whapi

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

func TestSendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok").WithRetry(0, time.Millisecond)
	require.NoError(t, c.SendText(context.Background(), "491@s.whatsapp.net", "hello"))

	require.Equal(t, "/messages/text", gotPath)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "491@s.whatsapp.net", gotBody["to"])
	require.Equal(t, "hello", gotBody["body"])
}

func TestSendPresence(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok").WithRetry(0, time.Millisecond)
	require.NoError(t, c.SendPresence(context.Background(), "491@s.whatsapp.net", "typing", 5))

	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/presences/491@s.whatsapp.net", gotPath)
	require.Equal(t, "typing", gotBody["presence"])
	require.Equal(t, float64(5), gotBody["delay"])
}

func TestRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok").WithRetry(3, time.Millisecond)
	require.NoError(t, c.SendText(context.Background(), "491", "hi"))
	require.Equal(t, int32(3), calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok").WithRetry(3, time.Millisecond)
	err := c.SendText(context.Background(), "491", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
	require.Equal(t, int32(1), calls.Load())
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("media-bytes"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	data, err := c.Download(context.Background(), srv.URL+"/media/1")
	require.NoError(t, err)
	require.Equal(t, []byte("media-bytes"), data)
}
