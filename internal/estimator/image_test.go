package estimator

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedFetcher(t *testing.T) *ImageFetcher {
	t.Helper()
	f, err := NewImageFetcher(8)
	require.NoError(t, err)
	httpmock.ActivateNonDefault(f.client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return f
}

func imageResponder(body []byte, contentType string) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(200, body)
		resp.Header.Set("Content-Type", contentType)
		return resp, nil
	}
}

func TestImageFetcherFetch(t *testing.T) {
	f := newMockedFetcher(t)
	raw := []byte{0xFF, 0xD8, 0xFF, 0xE0} // jpeg magic
	httpmock.RegisterResponder("GET", "https://img.example/cover.jpg",
		imageResponder(raw, "image/jpeg; charset=binary"))

	mediaType, data, err := f.Fetch(context.Background(), "https://img.example/cover.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mediaType, "content-type parameters stripped")
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), data)
}

func TestImageFetcherCachesByURL(t *testing.T) {
	f := newMockedFetcher(t)
	httpmock.RegisterResponder("GET", "https://img.example/cover.jpg",
		imageResponder([]byte{1, 2, 3}, "image/png"))

	_, _, err := f.Fetch(context.Background(), "https://img.example/cover.jpg")
	require.NoError(t, err)
	_, _, err = f.Fetch(context.Background(), "https://img.example/cover.jpg")
	require.NoError(t, err)

	assert.Equal(t, 1, httpmock.GetTotalCallCount(), "second fetch served from cache")
}

func TestImageFetcherRejectsNonImage(t *testing.T) {
	f := newMockedFetcher(t)
	httpmock.RegisterResponder("GET", "https://img.example/page",
		imageResponder([]byte("<html></html>"), "text/html"))

	_, _, err := f.Fetch(context.Background(), "https://img.example/page")
	assert.ErrorContains(t, err, "not an image")
}

func TestImageFetcherRejectsErrorStatus(t *testing.T) {
	f := newMockedFetcher(t)
	httpmock.RegisterResponder("GET", "https://img.example/gone",
		httpmock.NewStringResponder(404, "not found"))

	_, _, err := f.Fetch(context.Background(), "https://img.example/gone")
	assert.ErrorContains(t, err, "status 404")
}

func TestImageFetcherRejectsEmptyBody(t *testing.T) {
	f := newMockedFetcher(t)
	httpmock.RegisterResponder("GET", "https://img.example/empty",
		imageResponder(nil, "image/jpeg"))

	_, _, err := f.Fetch(context.Background(), "https://img.example/empty")
	assert.ErrorContains(t, err, "empty body")
}
