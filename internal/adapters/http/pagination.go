package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination contains offset-based pagination info.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// LastOffset is the offset of the final page when paging from zero.
func (p Pagination) LastOffset() int {
	if p.Total <= 0 || p.Limit <= 0 {
		return 0
	}
	return ((p.Total - 1) / p.Limit) * p.Limit
}

// SetLinkHeaders adds RFC 8288 Link headers for paginated responses. Every
// query parameter other than offset and limit is carried over unchanged.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	var args fasthttp.Args
	c.Request().URI().QueryArgs().CopyTo(&args)
	args.Set("limit", strconv.Itoa(p.Limit))

	link := func(offset int, rel string) string {
		args.Set("offset", strconv.Itoa(offset))
		return fmt.Sprintf(`<%s?%s>; rel="%s"`, c.Path(), args.QueryString(), rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	links = append(links, link(p.LastOffset(), "last"))

	c.Set("Link", strings.Join(links, ", "))
}
