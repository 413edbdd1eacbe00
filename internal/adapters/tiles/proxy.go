package tiles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/parkfinder/internal/core/ports"
	"github.com/samirrijal/parkfinder/internal/pkg/metrics"
)

// MaxZoom is the deepest zoom level served.
const MaxZoom = 19

var (
	// ErrInvalidTile is returned for coordinates outside the tile pyramid.
	ErrInvalidTile = errors.New("invalid tile coordinates")
	// ErrUpstream is returned when the tile server fails.
	ErrUpstream = errors.New("tile upstream failed")
)

// Tile is a fetched raster tile.
type Tile struct {
	Body        []byte
	ContentType string
}

// Proxy fetches raster tiles from a slippy-map tile server, optionally
// caching them.
type Proxy struct {
	template   string
	subdomains []string
	userAgent  string
	cacheTTL   time.Duration
	cache      ports.CacheService
	http       *fasthttp.Client
}

// Option customises a Proxy.
type Option func(*Proxy)

// WithCache caches tiles for ttl.
func WithCache(c ports.CacheService, ttl time.Duration) Option {
	return func(p *Proxy) { p.cache, p.cacheTTL = c, ttl }
}

// WithHTTPClient replaces the underlying fasthttp client.
func WithHTTPClient(c *fasthttp.Client) Option {
	return func(p *Proxy) { p.http = c }
}

// NewProxy creates a Proxy for a URL template with {s}, {z}, {x} and {y} placeholders.
func NewProxy(template string, subdomains []string, userAgent string, opts ...Option) *Proxy {
	p := &Proxy{
		template:   template,
		subdomains: subdomains,
		userAgent:  userAgent,
		http: &fasthttp.Client{
			Name:                userAgent,
			MaxConnsPerHost:     64,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: time.Minute,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// URL expands the template for a tile. Subdomains rotate by tile position.
func (p *Proxy) URL(z, x, y int) string {
	s := ""
	if len(p.subdomains) > 0 {
		s = p.subdomains[(x+y)%len(p.subdomains)]
	}
	return strings.NewReplacer(
		"{s}", s,
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(p.template)
}

// Fetch returns the tile at z/x/y.
func (p *Proxy) Fetch(ctx context.Context, z, x, y int) (*Tile, error) {
	if z < 0 || z > MaxZoom {
		return nil, fmt.Errorf("%w: zoom %d", ErrInvalidTile, z)
	}
	if n := 1 << z; x < 0 || x >= n || y < 0 || y >= n {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrInvalidTile, z, x, y)
	}

	key := fmt.Sprintf("tiles:%d:%d:%d", z, x, y)
	if p.cache != nil {
		if body, err := p.cache.Get(ctx, key); err == nil && len(body) > 0 {
			metrics.CacheHits.WithLabelValues("tile").Inc()
			return &Tile{Body: body, ContentType: "image/png"}, nil
		}
		metrics.CacheMisses.WithLabelValues("tile").Inc()
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.URL(z, x, y))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetUserAgent(p.userAgent)

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.http.DoDeadline(req, resp, deadline); err != nil {
		metrics.TileFetchErrors.Inc()
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		metrics.TileFetchErrors.Inc()
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode())
	}

	tile := &Tile{
		Body:        append([]byte(nil), resp.Body()...),
		ContentType: string(resp.Header.ContentType()),
	}
	if tile.ContentType == "" {
		tile.ContentType = "image/png"
	}
	if p.cache != nil {
		_ = p.cache.Set(ctx, key, tile.Body, int(p.cacheTTL.Seconds()))
	}
	return tile, nil
}
