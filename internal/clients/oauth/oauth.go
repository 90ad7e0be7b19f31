package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

// TokenProvider hands out HTTP clients that attach a client-credentials
// bearer token for a partner's identity provider. Token sources are cached
// per (partner short code, client id) so tokens are only re-fetched near
// expiry.
type TokenProvider interface {
	Client(ctx context.Context, partner *types.Partner, timeout time.Duration) (*http.Client, error)
}

type tokenProvider struct {
	log *logger.Logger

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

func NewTokenProvider(baseLog *logger.Logger) TokenProvider {
	return &tokenProvider{
		log:     baseLog.With("service", "OAuthTokenProvider"),
		sources: map[string]oauth2.TokenSource{},
	}
}

func (p *tokenProvider) Client(ctx context.Context, partner *types.Partner, timeout time.Duration) (*http.Client, error) {
	if partner == nil {
		return nil, fmt.Errorf("partner required")
	}
	tokenURL := strings.TrimSpace(partner.OAuthTokenURL)
	clientID := strings.TrimSpace(partner.OAuthClientID)
	if tokenURL == "" || clientID == "" {
		return nil, fmt.Errorf("partner %s missing oauth configuration", partner.ShortCode)
	}

	key := partner.ShortCode + "|" + clientID

	p.mu.Lock()
	src, ok := p.sources[key]
	if !ok {
		cfg := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: partner.OAuthClientSecret,
			TokenURL:     tokenURL,
		}
		// The token source reuses its token until expiry regardless of the
		// request context, so bind it to the background context.
		src = cfg.TokenSource(context.Background())
		p.sources[key] = src
	}
	p.mu.Unlock()

	client := oauth2.NewClient(ctx, src)
	client.Timeout = timeout
	return client, nil
}
