// Package tree is the in-memory model of a container: folders, records and
// their attachments, plus path resolution and the set/put/delete mutators.
package tree

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"kv-go/internal/errors"
)

// RootName is the display name of the root folder. It is never stored.
const RootName = "/"

// MaxDepth is the deepest a folder may sit below the root.
const MaxDepth = 1024

// Tree owns the root folder and the binary pool its attachments point into.
type Tree struct {
	root *Folder
	pool *Pool
}

// New returns an empty tree with a fresh root id.
func New() *Tree {
	return NewWithRoot(uuid.New(), NewPool())
}

// NewWithRoot returns a tree whose root carries id and whose attachments resolve against pool.
func NewWithRoot(id uuid.UUID, pool *Pool) *Tree {
	t := &Tree{pool: pool}
	t.root = &Folder{ID: id, tree: t}
	return t
}

func (t *Tree) Root() *Folder { return t.root }
func (t *Tree) Pool() *Pool   { return t.pool }

// Folder is a named branch node. Child folder names are unique among siblings.
type Folder struct {
	ID uuid.UUID

	name    string
	parent  *Folder
	tree    *Tree
	folders []*Folder
	records []*Record
}

// Name returns the folder name, or RootName for the root.
func (f *Folder) Name() string {
	if f.IsRoot() {
		return RootName
	}
	return f.name
}

// IsRoot reports whether f is the root of a tree.
func (f *Folder) IsRoot() bool {
	return f.tree != nil && f.tree.root == f
}

// Parent returns the parent folder, nil for the root or a deleted folder.
func (f *Folder) Parent() *Folder { return f.parent }

// Depth returns the number of folders between f and the root, 0 for the root.
func (f *Folder) Depth() int {
	n := 0
	for cur := f; cur.parent != nil; cur = cur.parent {
		n++
	}
	return n
}

// Attached reports whether f is still reachable from a tree root.
func (f *Folder) Attached() bool { return f.tree != nil }

// Path returns the slash-separated path of f from the root, "" for the root itself.
func (f *Folder) Path() string {
	if f.parent == nil {
		return ""
	}
	var parts []string
	for cur := f; cur.parent != nil; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Folders returns the child folders in insertion order.
func (f *Folder) Folders() []*Folder {
	return append([]*Folder(nil), f.folders...)
}

// Records returns the child records in insertion order.
func (f *Folder) Records() []*Record {
	return append([]*Record(nil), f.records...)
}

// Folder returns the child folder with exactly this name.
func (f *Folder) Folder(name string) *Folder {
	for _, c := range f.folders {
		if c.name == name {
			return c
		}
	}
	return nil
}

// AttachFolder adds a child folder with a known id. It fails if the name is taken.
func (f *Folder) AttachFolder(id uuid.UUID, name string) (*Folder, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if !f.Attached() {
		return nil, fmt.Errorf("folder %q has been deleted", f.name)
	}
	if f.Depth() >= MaxDepth {
		return nil, fmt.Errorf("folder %q would be nested deeper than %d: %w", name, MaxDepth, errors.ErrInvalidPath)
	}
	if f.Folder(name) != nil {
		return nil, fmt.Errorf("folder %q already exists in %q: %w", name, f.Name(), errors.ErrAlreadyExists)
	}
	child := &Folder{ID: id, name: name, parent: f, tree: f.tree}
	f.folders = append(f.folders, child)
	return child, nil
}

// AttachmentRef names a pooled blob when rebuilding a record from storage.
type AttachmentRef struct {
	Filename string
	BlobID   uint32
}

// AttachRecord adds a stored record to f, taking a pool reference for each attachment.
func (f *Folder) AttachRecord(id uuid.UUID, title, username, password string, refs []AttachmentRef) (*Record, error) {
	if !f.Attached() {
		return nil, fmt.Errorf("folder %q has been deleted", f.name)
	}
	r := &Record{ID: id, Title: title, Username: username, Password: password, parent: f}
	for _, ref := range refs {
		if err := f.tree.pool.Retain(ref.BlobID); err != nil {
			r.releaseAttachments()
			return nil, fmt.Errorf("attachment %q: %w", ref.Filename, err)
		}
		r.attachments = append(r.attachments, &Attachment{Filename: ref.Filename, BlobID: ref.BlobID, record: r})
	}
	f.records = append(f.records, r)
	return r, nil
}

// Entries returns a fresh ordered listing of the direct children: folders first,
// then each record's KeyValue view followed by its File views.
func (f *Folder) Entries() []Entry {
	entries := make([]Entry, 0, len(f.folders)+len(f.records))
	for _, c := range f.folders {
		entries = append(entries, Entry{kind: KindFolder, folder: c})
	}
	for _, r := range f.records {
		if r.IsKeyValue() {
			entries = append(entries, Entry{kind: KindKeyValue, record: r})
		}
		for _, a := range r.attachments {
			entries = append(entries, Entry{kind: KindFile, record: r, attachment: a})
		}
	}
	return entries
}

// SetValue updates the KeyValue named name (case-insensitive) or creates it.
func (f *Folder) SetValue(name, value string) (*Record, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if !f.Attached() {
		return nil, fmt.Errorf("folder %q has been deleted", f.name)
	}

	for _, e := range f.Entries() {
		if e.kind == KindKeyValue && strings.EqualFold(e.Name(), name) {
			e.record.Password = value
			return e.record, nil
		}
	}

	r := &Record{ID: uuid.New(), Title: name, Password: value, parent: f}
	f.records = append(f.records, r)
	return r, nil
}

// PutFile replaces the contents of the File named filename (case-insensitive) or creates it.
func (f *Folder) PutFile(filename string, contents []byte) (*Record, error) {
	if err := validateName(filename); err != nil {
		return nil, err
	}
	if !f.Attached() {
		return nil, fmt.Errorf("folder %q has been deleted", f.name)
	}
	pool := f.tree.pool

	for _, e := range f.Entries() {
		if e.kind == KindFile && strings.EqualFold(e.Name(), filename) {
			old := e.attachment.BlobID
			e.attachment.BlobID = pool.Add(contents)
			pool.Release(old)
			return e.record, nil
		}
	}

	r := &Record{ID: uuid.New(), Title: filename, parent: f}
	r.attachments = []*Attachment{{Filename: filename, BlobID: pool.Add(contents), record: r}}
	f.records = append(f.records, r)
	return r, nil
}

// File is one attachment given by contents, for building a record in one step.
type File struct {
	Filename string
	Contents []byte
}

// PutRecord stores a whole record in f. It replaces the record with this id, else the
// first record whose title matches case-insensitively (keeping that record's id), else
// adds a new one. The attachments are replaced as a set.
func (f *Folder) PutRecord(id uuid.UUID, title, username, password string, files []File) (*Record, error) {
	if !f.Attached() {
		return nil, fmt.Errorf("folder %q has been deleted", f.name)
	}
	for _, file := range files {
		if err := validateName(file.Filename); err != nil {
			return nil, err
		}
	}

	r := f.Record(id)
	if r == nil {
		for _, c := range f.records {
			if strings.EqualFold(c.Title, title) {
				r = c
				break
			}
		}
	}
	if r == nil {
		r = &Record{ID: id, parent: f}
		f.records = append(f.records, r)
	}

	attachments := make([]*Attachment, 0, len(files))
	for _, file := range files {
		attachments = append(attachments, &Attachment{Filename: file.Filename, BlobID: f.tree.pool.Add(file.Contents), record: r})
	}
	r.releaseAttachments()
	r.Title, r.Username, r.Password = title, username, password
	r.attachments = attachments
	return r, nil
}

// Record returns the child record with this id.
func (f *Folder) Record(id uuid.UUID) *Record {
	for _, r := range f.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Delete removes f and its whole subtree, releasing every blob the subtree referenced.
func (f *Folder) Delete() error {
	if f.IsRoot() {
		return fmt.Errorf("cannot delete the root folder: %w", errors.ErrInvalidPath)
	}
	if f.parent == nil {
		return fmt.Errorf("folder %q: %w", f.name, errors.ErrNotFound)
	}

	siblings := f.parent.folders
	for i, c := range siblings {
		if c == f {
			f.parent.folders = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	f.detach()
	return nil
}

// detach releases the subtree's blobs and clears every link into the tree.
func (f *Folder) detach() {
	for _, c := range f.folders {
		c.detach()
	}
	for _, r := range f.records {
		r.releaseAttachments()
		r.parent = nil
	}
	f.folders = nil
	f.records = nil
	f.parent = nil
	f.tree = nil
}

func (f *Folder) removeRecord(r *Record) {
	for i, c := range f.records {
		if c == r {
			f.records = append(f.records[:i:i], f.records[i+1:]...)
			return
		}
	}
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", errors.ErrInvalidName)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("name %q contains '/': %w", name, errors.ErrInvalidName)
	}
	return nil
}
