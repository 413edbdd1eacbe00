package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/parkfinder/internal/core/domain"
	"github.com/samirrijal/parkfinder/internal/core/ports"
	"github.com/samirrijal/parkfinder/internal/core/usecases"
)

// Client resolves a coarse position from a client IP address. The lookup URL
// is a template containing "{ip}", e.g. "https://ipapi.co/{ip}/json/".
type Client struct {
	urlTemplate string
	timeout     time.Duration
	http        *fasthttp.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying fasthttp client.
func WithHTTPClient(c *fasthttp.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a new Client.
func New(urlTemplate string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &Client{
		urlTemplate: urlTemplate,
		timeout:     timeout,
		http: &fasthttp.Client{
			Name:                "parkfinder-geoip",
			MaxConnsPerHost:     16,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ForIP returns a location source that looks up ip on demand.
func (c *Client) ForIP(ip string) ports.LocationSource {
	return ipSource{client: c, ip: ip}
}

type ipSource struct {
	client *Client
	ip     string
}

func (s ipSource) CurrentPosition(ctx context.Context) (domain.GeoPoint, error) {
	return s.client.Lookup(ctx, s.ip)
}

// lookupResponse accepts both the ipapi.co and ip-api.com field names.
type lookupResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Status    string   `json:"status"`
	Error     bool     `json:"error"`
}

// Lookup resolves ip to a position. Every failure wraps usecases.ErrLocationUnavailable.
func (c *Client) Lookup(ctx context.Context, ip string) (domain.GeoPoint, error) {
	if ip == "" {
		return domain.GeoPoint{}, fmt.Errorf("%w: empty client ip", usecases.ErrLocationUnavailable)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.ReplaceAll(c.urlTemplate, "{ip}", url.PathEscape(ip)))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if ctx.Err() != nil {
			return domain.GeoPoint{}, ctx.Err()
		}
		return domain.GeoPoint{}, fmt.Errorf("%w: geoip request: %v", usecases.ErrLocationUnavailable, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return domain.GeoPoint{}, fmt.Errorf("%w: geoip returned %d", usecases.ErrLocationUnavailable, resp.StatusCode())
	}

	var body lookupResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return domain.GeoPoint{}, fmt.Errorf("%w: decode geoip: %v", usecases.ErrLocationUnavailable, err)
	}
	if body.Error || (body.Status != "" && body.Status != "success") {
		return domain.GeoPoint{}, fmt.Errorf("%w: geoip could not resolve %s", usecases.ErrLocationUnavailable, ip)
	}

	lat, lon := body.Latitude, body.Longitude
	if lat == nil || lon == nil {
		lat, lon = body.Lat, body.Lon
	}
	if lat == nil || lon == nil {
		return domain.GeoPoint{}, fmt.Errorf("%w: geoip response without coordinates", usecases.ErrLocationUnavailable)
	}
	return domain.GeoPoint{Lat: *lat, Lon: *lon}, nil
}
