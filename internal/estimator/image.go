package estimator

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
)

// maxImageBytes caps how much photo data is attached to an estimator call.
const maxImageBytes = 5 << 20

type fetchedImage struct {
	mediaType string
	data      string // base64
}

// ImageFetcher downloads puzzle photos and caches them so repeated lookups
// for the same puzzle do not re-download the cover image.
type ImageFetcher struct {
	client *resty.Client
	cache  *lru.Cache[string, fetchedImage]
}

// NewImageFetcher creates a fetcher with an LRU cache of the given size.
func NewImageFetcher(cacheSize int) (*ImageFetcher, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[string, fetchedImage](cacheSize)
	if err != nil {
		return nil, eris.Wrap(err, "estimator: image cache")
	}
	client := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &ImageFetcher{client: client, cache: cache}, nil
}

// Fetch returns the media type and base64 data of the image at url.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) (mediaType, data string, err error) {
	if img, ok := f.cache.Get(url); ok {
		return img.mediaType, img.data, nil
	}

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", "", eris.Wrapf(err, "estimator: fetch image %s", url)
	}
	if resp.StatusCode() != 200 {
		return "", "", eris.Errorf("estimator: fetch image %s: status %d", url, resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return "", "", eris.Errorf("estimator: fetch image %s: empty body", url)
	}
	if len(body) > maxImageBytes {
		return "", "", eris.Errorf("estimator: image %s too large (%d bytes)", url, len(body))
	}

	mediaType = strings.TrimSpace(strings.Split(resp.Header().Get("Content-Type"), ";")[0])
	if !strings.HasPrefix(mediaType, "image/") {
		return "", "", fmt.Errorf("estimator: %s is not an image (content type %q)", url, mediaType)
	}

	img := fetchedImage{
		mediaType: mediaType,
		data:      base64.StdEncoding.EncodeToString(body),
	}
	f.cache.Add(url, img)
	return img.mediaType, img.data, nil
}
