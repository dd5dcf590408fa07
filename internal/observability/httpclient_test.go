package observability

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	req *http.Request
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.req = req
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
}

func TestWithHeaders_AppliesWithoutOverridingCallerHeaders(t *testing.T) {
	capture := &captureTransport{}
	client := WithHeaders(&http.Client{Transport: capture}, map[string]string{
		"X-Gateway-Key": "gw",
		"X-Existing":    "from-transport",
	})

	req, err := http.NewRequest(http.MethodGet, "http://embedding.internal/v1/embeddings", nil)
	require.NoError(t, err)
	req.Header.Set("X-Existing", "from-caller")

	_, err = client.Do(req)
	require.NoError(t, err)

	assert.Equal(t, "gw", capture.req.Header.Get("X-Gateway-Key"))
	assert.Equal(t, "from-caller", capture.req.Header.Get("X-Existing"))
}

func TestWithHeaders_NoHeadersReturnsBaseUnchanged(t *testing.T) {
	base := &http.Client{}
	assert.Same(t, base, WithHeaders(base, nil))
}

func TestNewHTTPClient_WrapsTransport(t *testing.T) {
	client := NewHTTPClient(nil)
	require.NotNil(t, client)
	assert.NotNil(t, client.Transport, "expected instrumented transport to be installed")
}
