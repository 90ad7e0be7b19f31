package httpx

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() || netErr.Temporary() {
			return true
		}
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

// DoWithRetry runs an HTTP request up to maxAttempts times, sleeping with
// jitter between attempts on retryable statuses. The request must have a
// rewindable body (GetBody set) for retries to be safe; callers here send
// fresh requests per attempt via the build func.
func DoWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error), maxAttempts int, baseDelay time.Duration) (*http.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err == nil && !IsRetryableHTTPStatus(resp.StatusCode) {
			return resp, nil
		}
		if err != nil {
			lastErr = err
			if !IsRetryableError(err) {
				return nil, err
			}
		} else {
			lastErr = &StatusError{Code: resp.StatusCode}
			sleep := RetryAfterDuration(resp, baseDelay, 30*time.Second)
			resp.Body.Close()
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(JitterSleep(sleep)):
				}
				continue
			}
			return nil, lastErr
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(JitterSleep(baseDelay)):
			}
		}
	}
	return nil, lastErr
}

// StatusError reports a non-2xx response that exhausted retries.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return "http status " + strconv.Itoa(e.Code) + ": " + e.Body
	}
	return "http status " + strconv.Itoa(e.Code)
}

func (e *StatusError) HTTPStatusCode() int { return e.Code }

// Drain reads and closes the response body and converts non-2xx statuses
// into a StatusError carrying the body text.
func Drain(resp *http.Response) ([]byte, error) {
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
