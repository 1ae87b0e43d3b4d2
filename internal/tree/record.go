package tree

import (
	"fmt"

	"github.com/google/uuid"

	"kv-go/internal/errors"
)

// Record is the stored form behind KeyValue and File entries.
// One record may surface as a KeyValue and as one File per attachment at the same time.
type Record struct {
	ID       uuid.UUID
	Title    string
	Username string
	Password string

	attachments []*Attachment
	parent      *Folder
}

// Attachment is a named pointer into the tree's binary pool.
type Attachment struct {
	Filename string
	BlobID   uint32

	record *Record
}

// Parent returns the folder holding r, nil once deleted.
func (r *Record) Parent() *Folder { return r.parent }

// Attachments returns the record's attachments in order.
func (r *Record) Attachments() []*Attachment {
	return append([]*Attachment(nil), r.attachments...)
}

// IsKeyValue reports whether r surfaces as a KeyValue entry.
func (r *Record) IsKeyValue() bool {
	return r.Username != "" || r.Password != "" || len(r.attachments) == 0
}

func (r *Record) pool() (*Pool, error) {
	if r.parent == nil || r.parent.tree == nil {
		return nil, fmt.Errorf("record %q: %w", r.Title, errors.ErrNotFound)
	}
	return r.parent.tree.pool, nil
}

// Delete removes the record and releases all its attachments.
func (r *Record) Delete() error {
	if r.parent == nil {
		return fmt.Errorf("record %q: %w", r.Title, errors.ErrNotFound)
	}
	r.releaseAttachments()
	r.parent.removeRecord(r)
	r.parent = nil
	return nil
}

func (r *Record) releaseAttachments() {
	if pool, err := r.pool(); err == nil {
		for _, a := range r.attachments {
			pool.Release(a.BlobID)
		}
	}
	r.attachments = nil
}

// Contents returns the attachment bytes from the pool.
func (a *Attachment) Contents() ([]byte, error) {
	if a.record == nil {
		return nil, fmt.Errorf("attachment %q: %w", a.Filename, errors.ErrNotFound)
	}
	pool, err := a.record.pool()
	if err != nil {
		return nil, err
	}
	data, ok := pool.Get(a.BlobID)
	if !ok {
		return nil, fmt.Errorf("attachment %q: blob %d missing: %w", a.Filename, a.BlobID, errors.ErrCorrupt)
	}
	return data, nil
}

// Delete removes the attachment and its pooled blob. The owning record goes too
// once it has no attachments and no username or password.
func (a *Attachment) Delete() error {
	r := a.record
	if r == nil {
		return fmt.Errorf("attachment %q: %w", a.Filename, errors.ErrNotFound)
	}
	pool, err := r.pool()
	if err != nil {
		return err
	}

	for i, c := range r.attachments {
		if c == a {
			r.attachments = append(r.attachments[:i:i], r.attachments[i+1:]...)
			break
		}
	}
	pool.Release(a.BlobID)
	a.record = nil

	if len(r.attachments) == 0 && r.Username == "" && r.Password == "" {
		r.parent.removeRecord(r)
		r.parent = nil
	}
	return nil
}
