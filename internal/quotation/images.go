package quotation

import (
	"fmt"

	"quotations/internal/apperr"
	"quotations/pkg/imagestore"
)

// AssignImages maps uploaded files to line item positions. A line with an
// explicit ImageIndex gets that file. The remaining files go, in upload order, to
// the lines that can take an image (see LineItemDescriptor.canTakeImage).
// It returns the files no line asked for.
func AssignImages(items []LineItemDescriptor, files []imagestore.Attachment, update bool) (map[int]imagestore.Attachment, []int, error) {
	assigned := make(map[int]imagestore.Attachment)
	taken := make([]bool, len(files))

	for pos, d := range items {
		if d.ImageIndex == nil {
			continue
		}
		idx := *d.ImageIndex
		if idx < 0 || idx >= len(files) {
			return nil, nil, apperr.Validation(fmt.Sprintf("items[%d]: image_index %d does not match any of the %d uploaded file(s)", pos, idx, len(files)))
		}
		if !d.canTakeImage(update) {
			return nil, nil, apperr.Validation(fmt.Sprintf("items[%d]: image_index given for an existing item that is not replacing its image", pos))
		}
		if taken[idx] {
			return nil, nil, apperr.Validation(fmt.Sprintf("items[%d]: image_index %d is already used by another line", pos, idx))
		}
		taken[idx] = true
		assigned[pos] = files[idx]
	}

	next := 0
	for pos, d := range items {
		if d.ImageIndex != nil || !d.canTakeImage(update) {
			continue
		}
		for next < len(files) && taken[next] {
			next++
		}
		if next == len(files) {
			break
		}
		taken[next] = true
		assigned[pos] = files[next]
		next++
	}

	var unused []int
	for i, ok := range taken {
		if !ok {
			unused = append(unused, i)
		}
	}
	return assigned, unused, nil
}
