package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/coursegraph/catalog-backend/internal/clients/oauth"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/pkg/httpx"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/utils"
)

// Client pushes run scheduling and imagery to the LMS authoring system.
type Client interface {
	// PublishRun PATCHes the run's scheduling, pacing and title. A failure
	// here fails the publication.
	PublishRun(ctx context.Context, partner *types.Partner, run *types.CourseRun) error
	// PushImage uploads the course card image for the run. Failures are the
	// caller's to log; they do not fail the publication.
	PushImage(ctx context.Context, partner *types.Partner, run *types.CourseRun, filename string, image []byte) error
}

type client struct {
	log        *logger.Logger
	timeout    time.Duration
	maxRetries int
	tokens     oauth.TokenProvider
}

func NewClient(log *logger.Logger, tokens oauth.TokenProvider) Client {
	timeoutSec := utils.GetEnvAsInt("STUDIO_TIMEOUT_SECONDS", 10, log)
	maxRetries := utils.GetEnvAsInt("STUDIO_MAX_RETRIES", 3, log)
	return &client{
		log:        log.With("service", "StudioClient"),
		timeout:    time.Duration(timeoutSec) * time.Second,
		maxRetries: maxRetries,
		tokens:     tokens,
	}
}

type runPatch struct {
	Start      *time.Time `json:"start"`
	End        *time.Time `json:"end"`
	PacingType string     `json:"pacing_type"`
	Title      string     `json:"title"`
}

func (c *client) PublishRun(ctx context.Context, partner *types.Partner, run *types.CourseRun) error {
	base := strings.TrimRight(strings.TrimSpace(partner.StudioURL), "/")
	if base == "" {
		return fmt.Errorf("partner %s has no studio url", partner.ShortCode)
	}

	httpClient, err := c.tokens.Client(ctx, partner, c.timeout)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(runPatch{
		Start:      run.Start,
		End:        run.End,
		PacingType: run.PacingType,
		Title:      run.Title,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/course_runs/%s/", base, run.Key)
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, httpClient, build, c.maxRetries+1, time.Second)
	if err != nil {
		return fmt.Errorf("studio publish %s: %w", run.Key, err)
	}
	if _, err := httpx.Drain(resp); err != nil {
		return fmt.Errorf("studio publish %s: %w", run.Key, err)
	}
	return nil
}

func (c *client) PushImage(ctx context.Context, partner *types.Partner, run *types.CourseRun, filename string, image []byte) error {
	base := strings.TrimRight(strings.TrimSpace(partner.StudioURL), "/")
	if base == "" {
		return fmt.Errorf("partner %s has no studio url", partner.ShortCode)
	}
	if len(image) == 0 {
		return nil
	}

	httpClient, err := c.tokens.Client(ctx, partner, c.timeout)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("card_image", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, bytes.NewReader(image)); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	raw := body.Bytes()
	contentType := mw.FormDataContentType()

	url := fmt.Sprintf("%s/api/v1/course_runs/%s/images/", base, run.Key)
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, httpClient, build, c.maxRetries+1, time.Second)
	if err != nil {
		return fmt.Errorf("studio image upload %s: %w", run.Key, err)
	}
	if _, err := httpx.Drain(resp); err != nil {
		return fmt.Errorf("studio image upload %s: %w", run.Key, err)
	}
	return nil
}
