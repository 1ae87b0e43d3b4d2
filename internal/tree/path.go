package tree

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kv-go/internal/errors"
)

// CleanPath strips one leading and one trailing slash.
func CleanPath(p string) string {
	return strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/")
}

// SplitEntryPath splits a cleaned entry path into its folder path and leaf name.
func SplitEntryPath(p string) (dir, leaf string) {
	p = CleanPath(p)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// ResolveFolder looks up an existing folder. It never creates anything.
func (t *Tree) ResolveFolder(path string) (*Folder, error) {
	clean := CleanPath(path)
	cur := t.root
	if clean == "" {
		return cur, nil
	}
	for _, name := range strings.Split(clean, "/") {
		next := cur.Folder(name)
		if name == "" || next == nil {
			return nil, errors.FolderNotFound(path)
		}
		cur = next
	}
	return cur, nil
}

// MakeFolder resolves path, creating any missing folders along the way.
func (t *Tree) MakeFolder(path string) (*Folder, error) {
	clean := CleanPath(path)
	cur := t.root
	if clean == "" {
		return cur, nil
	}
	names := strings.Split(clean, "/")
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty component in %q: %w", path, errors.ErrInvalidPath)
		}
	}
	if len(names) > MaxDepth {
		return nil, fmt.Errorf("%q is nested deeper than %d: %w", path, MaxDepth, errors.ErrInvalidPath)
	}
	for _, name := range names {
		next := cur.Folder(name)
		if next == nil {
			var err error
			if next, err = cur.AttachFolder(uuid.New(), name); err != nil {
				return nil, fmt.Errorf("creating folder %q: %w", name, err)
			}
		}
		cur = next
	}
	return cur, nil
}

// ResolveEntry finds the first direct child of the parent folder whose name matches
// the leaf case-insensitively. A missing parent yields a folder NotFoundError,
// a missing leaf an entry NotFoundError.
func (t *Tree) ResolveEntry(path string) (Entry, error) {
	dir, leaf := SplitEntryPath(path)
	folder, err := t.ResolveFolder(dir)
	if err != nil {
		return Entry{}, err
	}
	if leaf == "" {
		return Entry{}, errors.EntryNotFound(path)
	}
	for _, e := range folder.Entries() {
		if strings.EqualFold(e.Name(), leaf) {
			return e, nil
		}
	}
	return Entry{}, errors.EntryNotFound(path)
}
