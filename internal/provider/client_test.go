package provider_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-academy/backend/internal/provider"
	"github.com/aura-academy/backend/pkg/apperr"
)

const readyBody = `{
  "success": true,
  "errors": [],
  "result": {
    "uid": "ext-1",
    "thumbnail": "https://cdn.example/ext-1/thumb.jpg",
    "duration": 312.5,
    "meta": {"name": "lesson-1.mp4"},
    "status": {"state": "ready", "pctComplete": "100.000000", "errorReasonCode": "", "errorReasonText": ""},
    "playback": {"hls": "https://cdn.example/ext-1/manifest/video.m3u8", "dash": "https://cdn.example/ext-1/manifest/video.mpd"}
  }
}`

func newClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *provider.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return provider.NewClient(provider.Config{
		BaseURL:   srv.URL + "/",
		AccountID: "acct",
		APIToken:  "secret-token",
		Timeout:   timeout,
	}, srv.Client(), nil)
}

func TestGetStatusReady(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/accounts/acct/stream/ext-1", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, readyBody)
	}, time.Second)

	st, err := client.GetStatus(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, provider.StateReady, st.State)
	assert.Equal(t, 100, st.ProgressPercent)
	assert.Equal(t, "https://cdn.example/ext-1/manifest/video.m3u8", st.PlaybackHLS)
	assert.Equal(t, "https://cdn.example/ext-1/manifest/video.mpd", st.PlaybackDASH)
	require.NotNil(t, st.DurationSeconds)
	assert.InDelta(t, 312.5, *st.DurationSeconds, 0.001)
	assert.Equal(t, "lesson-1.mp4", st.Meta["name"])
}

func TestGetStatusInProgressNumericPercent(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"result":{"uid":"ext-2","duration":-1,"status":{"state":"inprogress","pctComplete":40.7}}}`)
	}, time.Second)

	st, err := client.GetStatus(context.Background(), "ext-2")
	require.NoError(t, err)
	assert.Equal(t, provider.StateInProgress, st.State)
	assert.Equal(t, 40, st.ProgressPercent)
	assert.Nil(t, st.DurationSeconds)
	assert.False(t, st.PlaybackAvailable())
}

func TestGetStatusErrorsAreExternal(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"success":false,"errors":[{"code":10000,"message":"upstream"}]}`)
		}},
		{"unsuccessful envelope", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"success":false,"errors":[{"code":10005,"message":"bad"}]}`)
		}},
		{"unknown state", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"success":true,"result":{"uid":"x","status":{"state":"exploded"}}}`)
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `not json`)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newClient(t, tc.handler, time.Second)
			_, err := client.GetStatus(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrExternalService)
		})
	}
}

func TestGetStatusTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	start := time.Now()
	_, err := client.GetStatus(context.Background(), "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGetStatusRequiresID(t *testing.T) {
	client := provider.NewClient(provider.Config{}, nil, nil)
	_, err := client.GetStatus(context.Background(), " ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestDeleteVideo(t *testing.T) {
	var method string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}, time.Second)
	require.NoError(t, client.DeleteVideo(context.Background(), "ext-1"))
	assert.Equal(t, http.MethodDelete, method)
}

func TestDeleteVideoNotFoundIsSuccess(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, time.Second)
	assert.NoError(t, client.DeleteVideo(context.Background(), "gone"))
}

func TestDeleteVideoFailure(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, time.Second)
	err := client.DeleteVideo(context.Background(), "ext-1")
	assert.ErrorIs(t, err, apperr.ErrExternalService)
}

func TestCopyFromURL(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acct/stream/copy", r.URL.Path)
		var body struct {
			URL  string            `json:"url"`
			Meta map[string]string `json:"meta"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://bucket.s3/sources/a.mp4", body.URL)
		assert.Equal(t, "Intro", body.Meta["name"])
		_, _ = io.WriteString(w, `{"success":true,"result":{"uid":"new-uid","status":{"state":"downloading"}}}`)
	}, time.Second)

	uid, err := client.CopyFromURL(context.Background(), "https://bucket.s3/sources/a.mp4", map[string]string{"name": "Intro"})
	require.NoError(t, err)
	assert.Equal(t, "new-uid", uid)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"uid":"ext-1"}`)
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	header := "time=" + ts + ",sig1=" + hex.EncodeToString(provider.Sign("whsec", ts, body))

	require.NoError(t, provider.VerifySignature("whsec", header, body, now, 5*time.Minute))
	assert.ErrorIs(t, provider.VerifySignature("other", header, body, now, 5*time.Minute), provider.ErrBadSignature)
	assert.ErrorIs(t, provider.VerifySignature("whsec", header, []byte(`{}`), now, 5*time.Minute), provider.ErrBadSignature)
	assert.ErrorIs(t, provider.VerifySignature("whsec", header, body, now.Add(time.Hour), 5*time.Minute), provider.ErrStaleSignature)
	assert.ErrorIs(t, provider.VerifySignature("whsec", "garbage", body, now, 0), provider.ErrBadSignature)
}

func TestParseWebhook(t *testing.T) {
	id, st, err := provider.ParseWebhook([]byte(`{"uid":"ext-9","status":{"state":"error","errorReasonCode":"ERR_DURATION_EXCEED_CONSTRAINT","errorReasonText":"too long"}}`))
	require.NoError(t, err)
	assert.Equal(t, "ext-9", id)
	assert.Equal(t, provider.StateError, st.State)
	assert.Equal(t, "ERR_DURATION_EXCEED_CONSTRAINT", st.ErrorCode)

	_, _, err = provider.ParseWebhook([]byte(`{"status":{"state":"ready"}}`))
	assert.Error(t, err)
}
