package types

// PageRequest selects a window of a sorted listing. Page is zero-based.
type PageRequest struct {
	Page int
	Size int
	Sort string
	Desc bool
}

// Offset returns the number of rows to skip for the requested page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page is a window of results plus totals over the whole listing.
type Page[T any] struct {
	Content          []T    `json:"content"`
	TotalElements    int64  `json:"totalElements"`
	TotalPages       int    `json:"totalPages"`
	Number           int    `json:"number"`
	Size             int    `json:"size"`
	NumberOfElements int    `json:"numberOfElements"`
	First            bool   `json:"first"`
	Last             bool   `json:"last"`
	Empty            bool   `json:"empty"`
	Sort             string `json:"sort"`
}

// NewPage assembles a Page from one window of content and the total count.
func NewPage[T any](req PageRequest, content []T, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}

	totalPages := 0
	if req.Size > 0 {
		totalPages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}

	sort := req.Sort
	if sort != "" {
		if req.Desc {
			sort += ",desc"
		} else {
			sort += ",asc"
		}
	}

	return Page[T]{
		Content:          content,
		TotalElements:    total,
		TotalPages:       totalPages,
		Number:           req.Page,
		Size:             req.Size,
		NumberOfElements: len(content),
		First:            req.Page == 0,
		Last:             req.Page >= totalPages-1,
		Empty:            len(content) == 0,
		Sort:             sort,
	}
}
