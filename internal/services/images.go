package services

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coursegraph/catalog-backend/internal/pkg/httpx"
)

// ImageLoader resolves a stored course image reference to its bytes.
type ImageLoader func(ctx context.Context, ref string) ([]byte, error)

// NewImageLoader returns the default loader: http(s) references are fetched
// over the network, anything else is read from the local media store.
func NewImageLoader(timeout time.Duration) ImageLoader {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, ref string) ([]byte, error) {
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			return httpx.Drain(resp)
		}
		return os.ReadFile(ref)
	}
}
