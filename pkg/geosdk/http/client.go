package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Options tunes one API client. RetryCount is 0 for the HUD lookups: a
// failed lookup degrades to "unknown" and the next throttle trigger asks
// again, so retrying inside the request buys nothing.
type Options struct {
	Timeout    time.Duration
	RetryCount int
	UserAgent  string // public geo APIs require an identifying agent
}

type Client struct {
	client    *resty.Client
	userAgent string
}

// NewClient builds a resty-backed client for one API host.
// Proxy settings come from the environment (HTTP_PROXY / HTTPS_PROXY).
func NewClient(host string, opt Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	if opt.UserAgent == "" {
		opt.UserAgent = "gohud/1.0"
	}

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(opt.Timeout).
		SetRetryCount(opt.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// honor Retry-After on 429 when a caller opted into retries
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &Client{client: client, userAgent: opt.UserAgent}
}

type RequestOptions struct {
	Headers  map[string]string
	Params   map[string]any
	FormData map[string]string // form-encoded body (Overpass style)
	Data     any               // JSON body
}

func (c *Client) newRequest(ctx context.Context, userAgent string) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "*/*")
	if userAgent != "" {
		r.SetHeader("User-Agent", userAgent)
	}
	return r
}

// DoRequest issues one request and decodes a 2xx JSON body into out.
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) (*resty.Response, error) {
	rc := c.newRequest(ctx, c.userAgent)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Params != nil {
			rc.SetQueryParamsFromValues(toValues(opt.Params))
		}
		if opt.FormData != nil {
			rc.SetFormData(opt.FormData)
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}
	if out != nil {
		rc.SetResult(out)
	}

	switch strings.ToUpper(method) {
	case http.MethodGet:
		return rc.Get(endpoint)
	case http.MethodPost:
		return rc.Post(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

func toValues(m map[string]any) map[string][]string {
	v := make(map[string][]string, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case []string:
			v[k] = t
		default:
			v[k] = []string{fmt.Sprint(val)}
		}
	}
	return v
}

// ParseHTTPError folds a resty response into a single error for non-2xx.
func ParseHTTPError(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	var body any
	b := resp.Body()
	_ = json.Unmarshal(b, &body)
	if body == nil {
		body = string(b)
	}
	return errors.Errorf("http %d: %v", resp.StatusCode(), body)
}
