package engine

// UnpaginatedPerPage is the sentinel perPage value meaning "all results".
// Used internally for select-option listings.
const UnpaginatedPerPage = -1

// Paginator is the envelope every collection read returns.
type Paginator struct {
	Data        []map[string]any `json:"data"`
	CurrentPage int              `json:"currentPage"`
	TotalPages  int              `json:"totalPages"`
	TotalItems  int64            `json:"totalItems"`
	PerPage     int              `json:"perPage"`
}

// NewPaginator wraps a result slice and its total count into a page envelope.
// With the unpaginated sentinel, data holds every row and perPage reflects
// the total count.
func NewPaginator(data []map[string]any, total int64, page, perPage int) *Paginator {
	if data == nil {
		data = []map[string]any{}
	}
	if perPage == UnpaginatedPerPage {
		return &Paginator{
			Data:        data,
			CurrentPage: 1,
			TotalPages:  1,
			TotalItems:  total,
			PerPage:     int(total),
		}
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return &Paginator{
		Data:        data,
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  total,
		PerPage:     perPage,
	}
}
