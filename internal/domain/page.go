package domain

// SortDirection is the ordering direction of a page.
type SortDirection string

// Sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// PageRequest describes which slice of a result set to return.
type PageRequest struct {
	Page      int
	Size      int
	SortField string
	SortDir   SortDirection
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page is a slice of a result set with totals.
type Page[T any] struct {
	Content          []T   `json:"content"`
	TotalElements    int64 `json:"total_elements"`
	TotalPages       int   `json:"total_pages"`
	Size             int   `json:"size"`
	Number           int   `json:"number"`
	First            bool  `json:"first"`
	Last             bool  `json:"last"`
	NumberOfElements int   `json:"number_of_elements"`
}

// NewPage builds a page from its content and the total row count.
func NewPage[T any](content []T, total int64, req PageRequest) Page[T] {
	if content == nil {
		content = make([]T, 0)
	}

	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}

	return Page[T]{
		Content:          content,
		TotalElements:    total,
		TotalPages:       totalPages,
		Size:             req.Size,
		Number:           req.Page,
		First:            req.Page == 0,
		Last:             req.Page+1 >= totalPages,
		NumberOfElements: len(content),
	}
}

// HasContent reports whether the page holds any rows.
func (p Page[T]) HasContent() bool {
	return len(p.Content) > 0
}

// Map converts page content with fn, keeping the totals.
func Map[T, R any](p Page[T], fn func(T) R) Page[R] {
	out := make([]R, 0, len(p.Content))
	for _, item := range p.Content {
		out = append(out, fn(item))
	}
	return Page[R]{
		Content:          out,
		TotalElements:    p.TotalElements,
		TotalPages:       p.TotalPages,
		Size:             p.Size,
		Number:           p.Number,
		First:            p.First,
		Last:             p.Last,
		NumberOfElements: len(out),
	}
}
