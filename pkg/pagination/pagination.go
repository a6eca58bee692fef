package pagination

import (
	"math"
	"net/http"
	"net/url"
	"strconv"
)

const (
	DefaultPage        = 1
	DefaultLimit       = 20
	MaxLimit           = 100
	DefaultCursorLimit = 20
	MaxCursorLimit     = 50
)

// PageParams holds offset pagination parameters extracted from a request.
type PageParams struct {
	Page   int
	Limit  int
	Offset int
}

// PageMeta is the pagination envelope returned with offset paged lists.
type PageMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Page wraps one page of an offset paged list.
type Page[T any] struct {
	Data       []T      `json:"data"`
	Pagination PageMeta `json:"pagination"`
}

// Paginate reads page and limit from query values. Out of range values are
// clamped and unparsable values fall back to defaults; it never fails.
func Paginate(q url.Values) PageParams {
	page := parsePositive(q.Get("page"), DefaultPage)
	if page < 1 {
		page = 1
	}
	limit := clamp(parsePositive(q.Get("limit"), DefaultLimit), 1, MaxLimit)
	// keep (page-1)*limit representable
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}

	return PageParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// FromRequest extracts offset pagination parameters from r.
func FromRequest(r *http.Request) PageParams {
	return Paginate(r.URL.Query())
}

// Meta builds the envelope for a result set of total items.
func (p PageParams) Meta(total int) PageMeta {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}
	return PageMeta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
		HasPrev:    p.Page > 1,
	}
}

// NewPage assembles an offset page.
func NewPage[T any](data []T, p PageParams, total int) Page[T] {
	if data == nil {
		data = []T{}
	}
	return Page[T]{Data: data, Pagination: p.Meta(total)}
}

// CursorParams holds cursor pagination parameters. Cursor is opaque to this
// package: it is whatever ordering value the caller returned last time.
type CursorParams struct {
	Limit  int
	Cursor string
}

// CursorPage wraps one page of a cursor paged list.
type CursorPage[T any] struct {
	Data       []T     `json:"data"`
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

// CursorPaginate reads limit and cursor from query values, clamping limit
// to 1..50.
func CursorPaginate(q url.Values) CursorParams {
	return CursorParams{
		Limit:  clamp(parsePositive(q.Get("limit"), DefaultCursorLimit), 1, MaxCursorLimit),
		Cursor: q.Get("cursor"),
	}
}

// CursorFromRequest extracts cursor pagination parameters from r.
func CursorFromRequest(r *http.Request) CursorParams {
	return CursorPaginate(r.URL.Query())
}

// FetchLimit is the number of rows to request from the store: one more than
// the page size so HasMore can be decided without a count.
func (c CursorParams) FetchLimit() int {
	return c.Limit + 1
}

// NewCursorPage trims rows fetched with FetchLimit down to the page size.
// cursorOf returns the ordering field (id or timestamp) of a row.
func NewCursorPage[T any](rows []T, c CursorParams, cursorOf func(T) string) CursorPage[T] {
	page := CursorPage[T]{Data: rows}
	if len(rows) > c.Limit {
		page.Data = rows[:c.Limit]
		page.HasMore = true
	}
	if page.Data == nil {
		page.Data = []T{}
	}
	if page.HasMore && len(page.Data) > 0 {
		next := cursorOf(page.Data[len(page.Data)-1])
		page.NextCursor = &next
	}
	return page
}

// parsePositive parses s, returning def when s is empty, unparsable or zero.
// Negative numbers are returned as-is so callers can clamp them.
func parsePositive(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
