package imap

import (
	"net/url"
	"strconv"
)

// Paginator is one page of messages together with the size of the whole
// result
type Paginator struct {
	Items       *MessageCollection
	Total       int
	PerPage     int
	CurrentPage int
}

// NewPaginator wraps items as page currentPage of total results
func NewPaginator(items *MessageCollection, total, perPage, currentPage int) *Paginator {
	if currentPage < 1 {
		currentPage = 1
	}
	return &Paginator{Items: items, Total: total, PerPage: perPage, CurrentPage: currentPage}
}

// LastPage is the number of the final page, at least 1
func (p *Paginator) LastPage() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

func (p *Paginator) HasMorePages() bool {
	return p.CurrentPage < p.LastPage()
}

// PageParam reads a page number from request parameters, returning 1 when
// it is missing or malformed
func PageParam(values url.Values, name string) int {
	page, err := strconv.Atoi(values.Get(name))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
