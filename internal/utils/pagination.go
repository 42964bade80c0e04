// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

// Page describes the [Start, End) window of one page over total items.
type Page struct {
	Start      int
	End        int
	TotalPages int
	HasMore    bool
}

// Paginate computes the slice bounds of a 1-based page of size limit.
// Pages past the end yield an empty window. TotalPages is ceil(total/limit).
func Paginate(total, page, limit int) Page {
	if limit < 1 {
		limit = 1
	}
	if page < 1 {
		page = 1
	}
	p := Page{TotalPages: (total + limit - 1) / limit}
	p.Start = (page - 1) * limit
	if p.Start > total {
		p.Start = total
	}
	p.End = p.Start + limit
	if p.End > total {
		p.End = total
	}
	p.HasMore = page < p.TotalPages
	return p
}
