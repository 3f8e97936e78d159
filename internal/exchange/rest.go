package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"shortradar/logger"
)

// APIError is a non-2xx response carrying the exchange error payload.
type APIError struct {
	Status  int
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange: http %d code %d: %s", e.Status, e.Code, e.Message)
}

// retryableStatus reports whether a response status justifies failing over
// to an alternate regional host: rate limits, IP bans, legal blocks and
// server-side failures. Plain client errors (bad symbol etc.) are final.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, 418, http.StatusUnavailableForLegalReasons:
		return true
	}
	return status >= 500
}

// restClient issues GET requests against an ordered list of hosts, moving
// to the next host when the current one is rate limited, banned or
// failing. Each host sits behind its own circuit breaker so a banned host
// is skipped without burning a request on it every call.
type restClient struct {
	hosts    []string
	hc       *http.Client
	breakers map[string]*gobreaker.CircuitBreaker
	log      *logger.Log
	name     string
}

func newRESTClient(name string, hosts []string, hc *http.Client, log *logger.Log) *restClient {
	c := &restClient{
		hosts:    hosts,
		hc:       hc,
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(hosts)),
		log:      log,
		name:     name,
	}
	for _, host := range hosts {
		c.breakers[host] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name + ":" + host,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				// A definitive client error is not the host's fault.
				var apiErr *APIError
				return errors.As(err, &apiErr) && !retryableStatus(apiErr.Status)
			},
		})
	}
	return c
}

// getJSON fetches path?query from the first healthy host and decodes the
// response into out.
func (c *restClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	log := c.log.WithComponent(c.name)

	var lastErr error
	for _, host := range c.hosts {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := c.breakers[host].Execute(func() (interface{}, error) {
			return c.do(ctx, host, path, query)
		})
		if err == nil {
			return json.Unmarshal(res.([]byte), out)
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !retryableStatus(apiErr.Status) {
			return err
		}

		lastErr = err
		if !errors.Is(err, gobreaker.ErrOpenState) {
			log.WithError(err).WithFields(logger.Fields{
				"host": host,
				"path": path,
			}).Warn("host failed, trying next")
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("exchange: no hosts configured for %s", c.name)
	}
	return fmt.Errorf("exchange: all hosts failed for %s: %w", path, lastErr)
}

func (c *restClient) do(ctx context.Context, host, path string, query url.Values) ([]byte, error) {
	u := strings.TrimRight(host, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code int64  `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Msg
		}
		return nil, apiErr
	}
	return body, nil
}
