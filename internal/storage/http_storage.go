package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ImageFetcher downloads and decodes a remote image.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) (image.Image, error)
}

// ErrUndecodableImage is wrapped by FetchImage when the body is not an image.
var ErrUndecodableImage = errors.New("failed to decode image")

const (
	defaultFetchAttempts = 3
	defaultMaxImageBytes = 20 << 20
)

// HTTPImageFetcher fetches images over HTTP, retrying transport errors and
// 5xx responses with exponential backoff. 4xx responses are final.
type HTTPImageFetcher struct {
	client     *http.Client
	attempts   uint64
	maxBytes   int64
	newBackOff func() backoff.BackOff
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(timeout time.Duration) *HTTPImageFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		// Connection pooling sized for single image downloads
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		attempts: defaultFetchAttempts,
		maxBytes: defaultMaxImageBytes,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// WithBackOff replaces the retry schedule; mostly useful in tests.
func (h *HTTPImageFetcher) WithBackOff(newBackOff func() backoff.BackOff) *HTTPImageFetcher {
	h.newBackOff = newBackOff
	return h
}

// WithMaxBytes caps the size of a downloaded image.
func (h *HTTPImageFetcher) WithMaxBytes(n int64) *HTTPImageFetcher {
	h.maxBytes = n
	return h
}

func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(h.newBackOff(), h.attempts-1), ctx)

	img, err := backoff.RetryWithData(func() (image.Image, error) {
		return h.fetchOnce(ctx, imageURL)
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", h.attempts, err)
	}
	return img, nil
}

func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid URL: %w", err))
	}
	req.Header.Set("Accept", "image/jpeg, image/png, */*")
	req.Header.Set("User-Agent", "Go-Ultrasound-Classifier/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(fmt.Errorf("client error: status code %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, h.maxBytes))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrUndecodableImage, err))
	}
	return img, nil
}
