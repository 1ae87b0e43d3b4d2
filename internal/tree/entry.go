package tree

import (
	"fmt"

	"kv-go/internal/errors"
)

// Kind is the closed set of entry kinds a folder listing can yield.
type Kind int

const (
	KindFolder Kind = iota
	KindKeyValue
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindKeyValue:
		return "keyvalue"
	case KindFile:
		return "file"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Entry is one view produced by Folder.Entries.
type Entry struct {
	kind       Kind
	folder     *Folder
	record     *Record
	attachment *Attachment
}

func (e Entry) Kind() Kind { return e.kind }

// Folder returns the folder for a KindFolder entry, nil otherwise.
func (e Entry) Folder() *Folder { return e.folder }

// Record returns the underlying record for KeyValue and File entries.
func (e Entry) Record() *Record { return e.record }

// Attachment returns the attachment for a KindFile entry, nil otherwise.
func (e Entry) Attachment() *Attachment { return e.attachment }

// Name is the folder name, KeyValue title or attachment filename.
func (e Entry) Name() string {
	switch e.kind {
	case KindFolder:
		return e.folder.Name()
	case KindKeyValue:
		return e.record.Title
	case KindFile:
		return e.attachment.Filename
	}
	return ""
}

// Value returns the secret of a KeyValue entry.
func (e Entry) Value() (string, error) {
	if e.kind != KindKeyValue {
		return "", fmt.Errorf("%s is a %s, not a key value: %w", e.Name(), e.kind, errors.ErrNotFound)
	}
	return e.record.Password, nil
}

// Contents returns the bytes of a File entry.
func (e Entry) Contents() ([]byte, error) {
	if e.kind != KindFile {
		return nil, fmt.Errorf("%s is a %s, not a file: %w", e.Name(), e.kind, errors.ErrNotFound)
	}
	return e.attachment.Contents()
}

// Delete removes whatever this view points at.
func (e Entry) Delete() error {
	switch e.kind {
	case KindFolder:
		return e.folder.Delete()
	case KindKeyValue:
		return e.record.Delete()
	case KindFile:
		return e.attachment.Delete()
	}
	return fmt.Errorf("unknown entry kind %d", int(e.kind))
}

func (e Entry) String() string {
	switch e.kind {
	case KindFolder:
		return fmt.Sprintf("Directory(name=%s)", e.Name())
	case KindKeyValue:
		return fmt.Sprintf("KeyValue(name=%s)", e.Name())
	case KindFile:
		return fmt.Sprintf("File(filename=%s)", e.Name())
	}
	return fmt.Sprintf("Entry(kind=%d)", int(e.kind))
}
