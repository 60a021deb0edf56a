package beacon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/klirineu/offertrack-web/internal/domain"
)

const (
	VerifyPath     = "/api/anticlone/verify"
	DefaultTimeout = 4 * time.Second

	maxResponseBytes = 64 << 10
)

// Client calls the verification endpoint the way the beacon does: one GET,
// no retries, bounded by Timeout.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Timeout time.Duration
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: http.DefaultClient, Timeout: DefaultTimeout}
}

// Verify asks the service whether pageURL is a clone of the site behind id.
func (c *Client) Verify(ctx context.Context, id, pageURL string) (domain.Directive, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{"id": {id}, "url": {pageURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+VerifyPath+"?"+q.Encode(), nil)
	if err != nil {
		return domain.NotClone(), fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		req.Header.Set("Origin", u.Scheme+"://"+u.Host)
		req.Header.Set("Referer", pageURL)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return domain.NotClone(), fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.NotClone(), fmt.Errorf("read verify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		return domain.NotClone(), fmt.Errorf("verify: status %d: %s", resp.StatusCode, msg)
	}
	return ParseDirective(body)
}

// ParseDirective reads a verification response body. Anything other than a
// JSON object is an error; missing fields read as not-a-clone.
func ParseDirective(body []byte) (domain.Directive, error) {
	if !gjson.ValidBytes(body) {
		return domain.NotClone(), errors.New("verify: malformed response")
	}
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return domain.NotClone(), errors.New("verify: response is not an object")
	}
	d := domain.Directive{IsClone: res.Get("isClone").Type == gjson.True}
	if !d.IsClone {
		return d, nil
	}
	if action := res.Get("action"); action.IsObject() {
		d.Action = &domain.Action{
			Type: domain.ActionType(action.Get("type").String()),
			Data: action.Get("data").String(),
		}
	}
	return d, nil
}
