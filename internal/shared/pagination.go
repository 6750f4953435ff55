package shared

import (
	"net/url"
	"strconv"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// Page is a 1-based page request.
type Page struct {
	Number  int
	PerPage int
}

// PageFromQuery reads page and per_page, clamping bad values.
func PageFromQuery(q url.Values) Page {
	p := Page{Number: 1, PerPage: defaultPerPage}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil && n > 0 {
		p.PerPage = min(n, maxPerPage)
	}
	return p
}

func (p Page) Limit() int { return p.PerPage }

func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }
