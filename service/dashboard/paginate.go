package dashboard

import "github.com/brojonat/signwatch/service/transfer"

// DefaultPageSize is the number of rows shown per page unless changed.
const DefaultPageSize = 20

// PageSizes are the page sizes offered to users.
var PageSizes = []int{10, 20, 50, 100}

// ValidPageSize reports whether n is one of PageSizes.
func ValidPageSize(n int) bool {
	for _, size := range PageSizes {
		if size == n {
			return true
		}
	}
	return false
}

// Page is one slice of a filtered view.
type Page struct {
	Items      []transfer.Record `json:"items"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
	TotalItems int               `json:"total_items"`
	StartIndex int               `json:"start_index"`
	EndIndex   int               `json:"end_index"`
}

// Paginate returns page (1-based) of view. Pages past the end produce an
// empty Items slice; page is not clamped here.
func Paginate(view []transfer.Record, pageSize, page int) Page {
	n := len(view)
	p := Page{
		Items:      []transfer.Record{},
		Page:       page,
		PageSize:   pageSize,
		TotalItems: n,
	}
	if pageSize <= 0 {
		return p
	}

	p.TotalPages = (n + pageSize - 1) / pageSize
	p.StartIndex = (page - 1) * pageSize
	p.EndIndex = min(p.StartIndex+pageSize, n)

	if p.StartIndex < 0 || p.StartIndex >= p.EndIndex {
		return p
	}
	p.Items = view[p.StartIndex:p.EndIndex]
	return p
}

// TotalPages is ceil(n / pageSize), or 0 for an empty view.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (n + pageSize - 1) / pageSize
}
