package types

const (
	// DefaultPage is used when no or an invalid page is requested.
	DefaultPage = 1
	// DefaultPageSize is used when no or an invalid page size is requested.
	DefaultPageSize = 20
	// MaxPageSize caps the number of items returned per page.
	MaxPageSize = 100
	// MaxPage bounds the page number so the row offset cannot overflow.
	MaxPage = 100000
)

// PageRequest carries 1-indexed page/pageSize pagination parameters.
type PageRequest struct {
	Page     int
	PageSize int
}

// Adjust normalizes the pagination parameters to valid values.
func (p *PageRequest) Adjust() {
	if p.Page < 1 {
		p.Page = DefaultPage
	} else if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	} else if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

// Offset returns the number of rows to skip for the current page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// NewPageInfo derives page metadata from a request and a total row count.
func NewPageInfo(req PageRequest, total int) PageInfo {
	pages := 0
	if req.PageSize > 0 {
		pages = (total + req.PageSize - 1) / req.PageSize
	}
	return PageInfo{
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalItems: total,
		TotalPages: pages,
		HasMore:    req.Page < pages,
	}
}

// ListResponse is a generic paginated response wrapper.
type ListResponse[T any] struct {
	Data     []T      `json:"data"`
	PageInfo PageInfo `json:"pagination"`
}
