package blob

import (
	"context"
	"fmt"
)

// Walk returns every file path in bucket, depth first in listing order.
// Directories are expanded with further List calls from an explicit stack,
// never downloaded. A failing top-level listing is returned as an error;
// failures below it go to onErr and that subtree is skipped. A prefix seen
// twice is not listed again, which stops a misbehaving store from looping.
func Walk(ctx context.Context, s Store, bucket string, onErr func(prefix string, err error)) ([]string, error) {
	top, err := s.List(ctx, bucket, "")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", bucket, err)
	}

	type frame struct {
		prefix  string
		entries []Entry
	}
	var files []string
	visited := map[string]bool{"": true}
	stack := []*frame{{entries: top}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		cur := stack[len(stack)-1]
		if len(cur.entries) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		entry := cur.entries[0]
		cur.entries = cur.entries[1:]
		if entry.Name == "" || entry.Name == "." || entry.Name == ".." {
			continue
		}

		full := Join(cur.prefix, entry.Name)
		if !entry.IsDir() {
			files = append(files, full)
			continue
		}
		if visited[full] {
			continue
		}
		visited[full] = true

		children, err := s.List(ctx, bucket, full)
		if err != nil {
			if onErr != nil {
				onErr(full, err)
			}
			continue
		}
		stack = append(stack, &frame{prefix: full, entries: children})
	}
	return files, nil
}
