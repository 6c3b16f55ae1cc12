package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dshills/sentirag/pkg/types"
)

// File reads a JSON array of dataset items from disk. When Path is empty
// the locator passed to Fetch is used as the path.
type File struct {
	Path string
}

func (f *File) Fetch(ctx context.Context, locator string, max int) ([]types.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrAcquisition, err)
	}
	path := f.Path
	if path == "" {
		path = locator
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrAcquisition, err)
	}
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", types.ErrAcquisition, path, err)
	}
	comments := Normalize(items, max)
	if len(comments) == 0 {
		return nil, fmt.Errorf("%w: %s has no comments", types.ErrAcquisition, path)
	}
	return comments, nil
}
