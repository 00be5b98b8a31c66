package serialize

import "strconv"

// PageSizeBounds clamps the client-supplied page_size.
type PageSizeBounds struct {
	Min     int
	Max     int
	Default int
}

// DefaultPageSizeBounds matches the conventional listing window.
var DefaultPageSizeBounds = PageSizeBounds{Min: 1, Max: 50, Default: 20}

// ComputePagination resolves raw page/page_size parameters. Missing,
// non-numeric or non-positive pages default to 1; page_size defaults
// when absent or invalid and is clamped into the bounds.
func ComputePagination(pageParam, pageSizeParam string, bounds PageSizeBounds) (page, pageSize int) {
	page = 1
	if n, err := strconv.Atoi(pageParam); err == nil && n > 0 {
		page = n
	}

	pageSize = bounds.Default
	if n, err := strconv.Atoi(pageSizeParam); err == nil && n > 0 {
		pageSize = n
	}
	if pageSize < bounds.Min {
		pageSize = bounds.Min
	}
	if pageSize > bounds.Max {
		pageSize = bounds.Max
	}
	return page, pageSize
}

// Offset converts a resolved page into the storage offset.
func Offset(page, pageSize int) uint64 {
	return uint64(page-1) * uint64(pageSize)
}

// MetaBuilder produces listing metadata. Exposures may replace it
// wholesale, not just tune the defaults.
type MetaBuilder func(totalCount int64, page, pageSize int) any

// BuildMeta is the default MetaBuilder.
func BuildMeta(totalCount int64, page, pageSize int) any {
	return map[string]any{
		"object":        "list",
		"total_objects": totalCount,
		"has_more":      int64(page)*int64(pageSize) < totalCount,
	}
}
