package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trainURL = "http://engine.local/v1/voice-clone/train"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient("http://engine.local/", "secret", WithHTTPClient(hc))
}

func TestSubmit_Success(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, trainURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
		assert.Equal(t, "attempt-1", req.Header.Get("X-Correlation-ID"))

		var p trainPayload
		require.NoError(t, json.NewDecoder(req.Body).Decode(&p))
		assert.Equal(t, "m1", p.ModelID)
		audio, err := base64.StdEncoding.DecodeString(p.Audio)
		require.NoError(t, err)
		assert.Equal(t, []byte("RIFF"), audio)

		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"success": true, "voice_id": "v-789"})
	})

	voiceID, err := c.Submit(context.Background(), SubmitRequest{Audio: []byte("RIFF"), ModelID: "m1", CorrelationID: "attempt-1"})
	require.NoError(t, err)
	assert.Equal(t, "v-789", voiceID)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSubmit_EngineFailure(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, trainURL,
		httpmock.NewStringResponder(http.StatusOK, `{"success":false,"error":"audio too noisy"}`))

	_, err := c.Submit(context.Background(), SubmitRequest{Audio: []byte("x"), ModelID: "m1", CorrelationID: "a"})
	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "audio too noisy", failure.Reason)
}

func TestSubmit_ClientErrorWithReason(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, trainURL,
		httpmock.NewStringResponder(http.StatusUnprocessableEntity, `{"error":"sample rate unsupported"}`))

	_, err := c.Submit(context.Background(), SubmitRequest{Audio: []byte("x"), ModelID: "m1", CorrelationID: "a"})
	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "sample rate unsupported", failure.Reason)
}

func TestSubmit_ServerErrorIsUnavailable(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, trainURL,
		httpmock.NewStringResponder(http.StatusBadGateway, `<html>bad gateway</html>`))

	_, err := c.Submit(context.Background(), SubmitRequest{Audio: []byte("x"), ModelID: "m1", CorrelationID: "a"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSubmit_TransportErrorIsUnavailable(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, trainURL, httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := c.Submit(context.Background(), SubmitRequest{Audio: []byte("x"), ModelID: "m1", CorrelationID: "a"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSubmit_ContextDeadline(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, trainURL, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Submit(ctx, SubmitRequest{Audio: []byte("x"), ModelID: "m1", CorrelationID: "a"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
