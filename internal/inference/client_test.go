package inference

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-anpr/internal/domain/anpr"
)

const testBaseURL = "https://detect.test"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(ClientConfig{BaseURL: testBaseURL + "/", APIKey: "secret key", Timeout: time.Second})
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestClient_Detect_Success(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/numplate-man88/1",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
			assert.Equal(t, "secret key", req.URL.Query().Get("api_key"))
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, "aGVsbG8=", string(body))
			return httpmock.NewStringResponse(http.StatusOK, `{
				"predictions": [
					{"class": "plate", "confidence": 0.91, "x": 120.5, "y": 80, "width": 60, "height": 20},
					{"class": "plate", "confidence": 0.40, "x": 10, "y": 10, "width": 5, "height": 5}
				]
			}`), nil
		})

	list, raw, err := c.Detect(context.Background(), "numplate-man88/1", "aGVsbG8=")
	require.NoError(t, err)
	require.Len(t, list.Predictions, 2)
	assert.NotEmpty(t, raw)

	box := list.TopBox()
	require.NotNil(t, box)
	assert.Equal(t, anpr.BoundingBox{CenterX: 120.5, CenterY: 80, Width: 60, Height: 20}, *box)
	assert.Equal(t, "plate", list.TopClass())
}

func TestClient_Detect_EmptyPredictions(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/color-u7k6u/2",
		httpmock.NewStringResponder(http.StatusOK, `{"predictions": []}`))

	list, _, err := c.Detect(context.Background(), "color-u7k6u/2", "x")
	require.NoError(t, err)
	assert.Equal(t, anpr.UnknownClass, list.TopClass())
	assert.Nil(t, list.TopBox())
}

func TestClient_Detect_Failures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		contains  string
	}{
		{"server error", httpmock.NewStringResponder(http.StatusInternalServerError, `{"error":"boom"}`), "non-OK response 500"},
		{"unauthorized", httpmock.NewStringResponder(http.StatusUnauthorized, `denied`), "non-OK response 401"},
		{"invalid json", httpmock.NewStringResponder(http.StatusOK, `{invalid`), "decode predictions"},
		{"transport error", httpmock.NewErrorResponder(io.ErrUnexpectedEOF), "unexpected EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t)
			httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/car_name-mshpx/2", tt.responder)

			_, _, err := c.Detect(context.Background(), "car_name-mshpx/2", "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, anpr.ErrServiceUnreachable)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestClient_Detect_Canceled(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost, testBaseURL+"/car_name-mshpx/2",
		httpmock.NewStringResponder(http.StatusOK, `{"predictions": []}`).Delay(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Detect(ctx, "car_name-mshpx/2", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, anpr.ErrServiceUnreachable)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.timeout)
}
