package domain

// PageWindow selects one pagination slice of the raw collection.
type PageWindow struct {
	Index int
	Size  int
}

// Bounds returns the half-open [start, end) range of the window for count items.
func (w PageWindow) Bounds(count int) (int, int) {
	if w.Size <= 0 || w.Index < 0 {
		return 0, 0
	}
	start := w.Index * w.Size
	if start >= count {
		return count, count
	}
	end := start + w.Size
	if end > count {
		end = count
	}
	return start, end
}

// Page is the projected, read-only view of one pagination window.
type Page struct {
	Index         int                 `json:"index"`
	Number        int                 `json:"number"`
	Size          int                 `json:"size"`
	TotalPages    int                 `json:"totalPages"`
	TotalComments int                 `json:"totalComments"`
	Items         []ClassifiedComment `json:"items"`
}

// TotalPages is ceil(count/size).
func TotalPages(count, size int) int {
	if count <= 0 || size <= 0 {
		return 0
	}
	return (count + size - 1) / size
}

// ClampPage keeps index within [0, max(totalPages-1, 0)].
func ClampPage(index, totalPages int) int {
	if index >= totalPages {
		index = totalPages - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

// Project overlays classified records on the raw comments inside the window.
// Comments without a classification show up as Pending.
func Project(raw []RawComment, classified map[string]ClassifiedComment, w PageWindow) Page {
	total := TotalPages(len(raw), w.Size)
	start, end := w.Bounds(len(raw))

	items := make([]ClassifiedComment, 0, end-start)
	for _, comment := range raw[start:end] {
		if record, ok := classified[comment.ID]; ok {
			items = append(items, record)
			continue
		}
		items = append(items, PendingFrom(comment))
	}

	return Page{
		Index:         w.Index,
		Number:        w.Index + 1,
		Size:          w.Size,
		TotalPages:    total,
		TotalComments: len(raw),
		Items:         items,
	}
}
