package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coursegraph/catalog-backend/internal/clients/oauth"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/pkg/httpx"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/utils"
)

// Language is one entry of the LMS coverage report.
type Language struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// AILanguages is the translation/transcription coverage the LMS reports for
// a course run.
type AILanguages struct {
	TranslationLanguages   []Language `json:"translation_languages"`
	TranscriptionLanguages []Language `json:"transcription_languages"`
}

// Client reads per-run AI language coverage from the partner's LMS.
type Client interface {
	RunAILanguages(ctx context.Context, partner *types.Partner, runKey string) (*AILanguages, error)
}

type client struct {
	log        *logger.Logger
	timeout    time.Duration
	maxRetries int
	tokens     oauth.TokenProvider
}

func NewClient(log *logger.Logger, tokens oauth.TokenProvider) Client {
	timeoutSec := utils.GetEnvAsInt("LMS_TIMEOUT_SECONDS", 30, log)
	maxRetries := utils.GetEnvAsInt("LMS_MAX_RETRIES", 3, log)
	return &client{
		log:        log.With("service", "LMSClient"),
		timeout:    time.Duration(timeoutSec) * time.Second,
		maxRetries: maxRetries,
		tokens:     tokens,
	}
}

func (c *client) RunAILanguages(ctx context.Context, partner *types.Partner, runKey string) (*AILanguages, error) {
	base := strings.TrimRight(strings.TrimSpace(partner.LMSAPIURL), "/")
	if base == "" {
		return nil, fmt.Errorf("partner %s has no lms api url", partner.ShortCode)
	}

	httpClient, err := c.tokens.Client(ctx, partner, c.timeout)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/ai_translations/v1/course_runs/%s/", base, runKey)
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, httpClient, build, c.maxRetries+1, time.Second)
	if err != nil {
		return nil, fmt.Errorf("lms ai languages %s: %w", runKey, err)
	}
	body, err := httpx.Drain(resp)
	if err != nil {
		return nil, fmt.Errorf("lms ai languages %s: %w", runKey, err)
	}

	var out AILanguages
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("lms ai languages %s: decode: %w", runKey, err)
	}
	return &out, nil
}
