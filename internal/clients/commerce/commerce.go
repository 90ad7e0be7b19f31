package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coursegraph/catalog-backend/internal/clients/oauth"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/pkg/httpx"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/utils"
)

// Client pushes priced products (seats, entitlements) to the commerce
// system's publication endpoint.
type Client interface {
	// PublishProducts POSTs the run's seats and the course's entitlements.
	// Returns false without calling out when nothing priced needs publishing.
	PublishProducts(ctx context.Context, partner *types.Partner, course *types.Course, run *types.CourseRun) (bool, error)
}

type client struct {
	log        *logger.Logger
	timeout    time.Duration
	maxRetries int
	tokens     oauth.TokenProvider
}

func NewClient(log *logger.Logger, tokens oauth.TokenProvider) Client {
	timeoutSec := utils.GetEnvAsInt("COMMERCE_TIMEOUT_SECONDS", 10, log)
	maxRetries := utils.GetEnvAsInt("COMMERCE_MAX_RETRIES", 3, log)
	return &client{
		log:        log.With("service", "CommerceClient"),
		timeout:    time.Duration(timeoutSec) * time.Second,
		maxRetries: maxRetries,
		tokens:     tokens,
	}
}

type attributeValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type product struct {
	Name            string           `json:"name,omitempty"`
	Expires         *time.Time       `json:"expires"`
	ProductClass    string           `json:"product_class"`
	Price           string           `json:"price"`
	AttributeValues []attributeValue `json:"attribute_values"`
}

type publicationRequest struct {
	ID                   string     `json:"id"`
	UUID                 string     `json:"uuid"`
	Name                 string     `json:"name"`
	VerificationDeadline *time.Time `json:"verification_deadline"`
	Products             []product  `json:"products"`
}

func serializeSeat(seat *types.Seat) product {
	certType := seat.Type
	if certType == "audit" {
		certType = ""
	}
	return product{
		Expires:      seat.UpgradeDeadline,
		ProductClass: "seat",
		Price:        formatPrice(seat.Price),
		AttributeValues: []attributeValue{
			{Name: "certificate_type", Value: certType},
			{Name: "id_verification_required", Value: seat.Type == "verified"},
		},
	}
}

func serializeEntitlement(ent *types.CourseEntitlement) product {
	return product{
		ProductClass: "enrollment_code",
		Price:        formatPrice(ent.Price),
		AttributeValues: []attributeValue{
			{Name: "certificate_type", Value: ent.Mode},
		},
	}
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

func (c *client) PublishProducts(ctx context.Context, partner *types.Partner, course *types.Course, run *types.CourseRun) (bool, error) {
	base := strings.TrimRight(strings.TrimSpace(partner.CommerceAPIURL), "/")
	if base == "" {
		c.log.Info("Partner has no commerce url; skipping product publication", "partner", partner.ShortCode)
		return false, nil
	}

	var products []product
	priced := false
	for i := range run.Seats {
		seat := &run.Seats[i]
		products = append(products, serializeSeat(seat))
		if seat.Price > 0 {
			priced = true
		}
	}
	var deadline *time.Time
	for i := range course.Entitlements {
		ent := &course.Entitlements[i]
		products = append(products, serializeEntitlement(ent))
		if ent.Price > 0 {
			priced = true
		}
	}
	for i := range run.Seats {
		if run.Seats[i].Type == "verified" {
			deadline = run.Seats[i].UpgradeDeadline
		}
	}
	if !priced {
		return false, nil
	}

	payload, err := json.Marshal(publicationRequest{
		ID:                   run.Key,
		UUID:                 course.UUID.String(),
		Name:                 run.Title,
		VerificationDeadline: deadline,
		Products:             products,
	})
	if err != nil {
		return false, err
	}

	httpClient, err := c.tokens.Client(ctx, partner, c.timeout)
	if err != nil {
		return false, err
	}

	url := base + "/publication/"
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, httpClient, build, c.maxRetries+1, time.Second)
	if err != nil {
		return false, fmt.Errorf("commerce publication %s: %w", run.Key, err)
	}
	if _, err := httpx.Drain(resp); err != nil {
		// A product that already exists with identical attributes is a
		// replay of a prior publication, not a failure.
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusBadRequest &&
			strings.Contains(statusErr.Body, "already exists") {
			c.log.Info("Commerce reports existing products; treating as published", "run", run.Key)
			return true, nil
		}
		return false, fmt.Errorf("commerce publication %s: %w", run.Key, err)
	}
	return true, nil
}
