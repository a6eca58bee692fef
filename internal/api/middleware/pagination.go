package middleware

import (
	"context"
	"net/http"

	"github.com/zatekoja/inpatient-core/pkg/pagination"
)

type paginationKey struct{}

type requestPaging struct {
	page   pagination.PageParams
	cursor pagination.CursorParams
}

// Pagination parses offset and cursor paging parameters once per request
// and stores them on the context. Bad values are clamped, never rejected.
func Pagination(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		q := r.URL.Query()
		paging := requestPaging{
			page:   pagination.Paginate(q),
			cursor: pagination.CursorPaginate(q),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), paginationKey{}, paging)))
	})
}

// PageFromRequest returns the offset paging parameters of r, parsing them
// when the Pagination middleware did not run
func PageFromRequest(r *http.Request) pagination.PageParams {
	if paging, ok := r.Context().Value(paginationKey{}).(requestPaging); ok {
		return paging.page
	}
	return pagination.FromRequest(r)
}

// CursorFromRequest returns the cursor paging parameters of r
func CursorFromRequest(r *http.Request) pagination.CursorParams {
	if paging, ok := r.Context().Value(paginationKey{}).(requestPaging); ok {
		return paging.cursor
	}
	return pagination.CursorFromRequest(r)
}
