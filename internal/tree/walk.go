package tree

// WalkFunc is called for every entry below a folder with the entry's path from the walk root.
type WalkFunc func(path string, e Entry) error

// Walk visits the subtree of f depth first, each folder before its contents,
// in Entries order. Returning an error stops the walk.
func (f *Folder) Walk(fn WalkFunc) error {
	return f.walk("", fn)
}

func (f *Folder) walk(prefix string, fn WalkFunc) error {
	for _, e := range f.Entries() {
		p := e.Name()
		if prefix != "" {
			p = prefix + "/" + p
		}
		if err := fn(p, e); err != nil {
			return err
		}
		if e.kind == KindFolder {
			if err := e.folder.walk(p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
