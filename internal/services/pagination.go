package services

import "unveil/internal/models"

// Page — страница результатов. Номер страницы считается с 1.
type Page struct {
	Results    []*models.Case `json:"results"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
	Total      int            `json:"total"`
	TotalPages int            `json:"totalPages"`
}

func normalizePage(page, size, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = def
	}
	if size > max {
		size = max
	}
	return page, size
}

func newPage(items []*models.Case, total, page, size int) *Page {
	if items == nil {
		items = []*models.Case{}
	}
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return &Page{Results: items, Page: page, Size: size, Total: total, TotalPages: pages}
}
