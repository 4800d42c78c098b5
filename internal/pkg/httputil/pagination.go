package httputil

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// Pagination defaults.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// maxOffset bounds page*size so the row offset never overflows.
	maxOffset = math.MaxInt32
)

// SortSpec declares which sort fields a listing accepts.
// Fields maps request names (snake_case and camelCase) to column names.
type SortSpec struct {
	Fields     map[string]string
	DefaultBy  string
	DefaultDir domain.SortDirection
}

// ParsePageRequest reads page, size and sort query parameters.
// Unknown sort fields fall back to the spec defaults.
func ParsePageRequest(r *http.Request, spec SortSpec) (domain.PageRequest, error) {
	q := r.URL.Query()

	req := domain.PageRequest{
		Page:      0,
		Size:      DefaultPageSize,
		SortField: spec.DefaultBy,
		SortDir:   spec.DefaultDir,
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid page: %q", v)
		}
		if page > 0 {
			req.Page = page
		}
	}

	if v := q.Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid size: %q", v)
		}
		switch {
		case size <= 0:
			req.Size = DefaultPageSize
		case size > MaxPageSize:
			req.Size = MaxPageSize
		default:
			req.Size = size
		}
	}

	if req.Page > maxOffset/req.Size {
		return req, fmt.Errorf("invalid page: %d is out of range", req.Page)
	}

	if v := q.Get("sort"); v != "" {
		field, dir, _ := strings.Cut(v, ",")
		column, ok := spec.Fields[strings.TrimSpace(field)]
		if !ok {
			return req, nil
		}
		req.SortField = column
		req.SortDir = domain.SortAsc
		if strings.EqualFold(strings.TrimSpace(dir), string(domain.SortDesc)) {
			req.SortDir = domain.SortDesc
		}
	}

	return req, nil
}
