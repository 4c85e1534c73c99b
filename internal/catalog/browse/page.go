package browse

import "fmt"

// DefaultPageSize matches the dashboard table.
const DefaultPageSize = 20

// Page is one slice of a result list. Page numbers start at 1.
type Page[T any] struct {
	Items []T
	Page  int
	Pages int
	Size  int
	Total int
	Start int // 1-based index of the first item, 0 when empty
	End   int // 1-based index of the last item
}

// Paginate cuts items into pages of size and returns page number page,
// clamped into range. Non-positive sizes use DefaultPageSize.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(items)
	pages := max((total+size-1)/size, 1)
	page = min(max(page, 1), pages)

	start := (page - 1) * size
	end := min(start+size, total)

	p := Page[T]{
		Items: items[start:end],
		Page:  page,
		Pages: pages,
		Size:  size,
		Total: total,
	}
	if end > start {
		p.Start = start + 1
		p.End = end
	}
	return p
}

// Caption renders "Showing 21-40 of 135".
func (p Page[T]) Caption() string {
	if p.Total == 0 {
		return "No results"
	}
	return fmt.Sprintf("Showing %d-%d of %d", p.Start, p.End, p.Total)
}

// HasNext reports whether a later page exists.
func (p Page[T]) HasNext() bool { return p.Page < p.Pages }

// HasPrev reports whether an earlier page exists.
func (p Page[T]) HasPrev() bool { return p.Page > 1 }
