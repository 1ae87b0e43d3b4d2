package kv

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"kv-go/internal/tree"
)

// Sealer encrypts an export document for its recipients.
type Sealer interface {
	Seal(r io.Reader, w io.Writer) error
}

// Unsealer decrypts an export document sealed by a matching Sealer.
type Unsealer interface {
	Unseal(r io.Reader, w io.Writer) error
}

const documentVersion = 2

// Document is the plaintext form of an export. Records travel whole, so one holding
// a password and attachments comes back as one record, not as separate entries.
type Document struct {
	Version int              `toml:"version"`
	Folders []string         `toml:"folders"`
	Records []DocumentRecord `toml:"records"`
}

// DocumentRecord is one record with the path of the folder holding it.
type DocumentRecord struct {
	Folder      string               `toml:"folder"`
	ID          string               `toml:"id"`
	Title       string               `toml:"title"`
	Username    string               `toml:"username,omitempty"`
	Password    string               `toml:"password,omitempty"`
	Attachments []DocumentAttachment `toml:"attachments,omitempty"`
}

// DocumentAttachment holds base64 file contents.
type DocumentAttachment struct {
	Filename string `toml:"filename"`
	Contents string `toml:"contents"`
}

// Len is the number of folders and records in d.
func (d *Document) Len() int {
	return len(d.Folders) + len(d.Records)
}

// Snapshot builds a Document from the whole tree, parents before children.
func Snapshot(t *tree.Tree) (*Document, error) {
	doc := &Document{Version: documentVersion}
	if err := doc.addFolder(t.Root()); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) addFolder(f *tree.Folder) error {
	for _, r := range f.Records() {
		rec := DocumentRecord{
			Folder:   f.Path(),
			ID:       r.ID.String(),
			Title:    r.Title,
			Username: r.Username,
			Password: r.Password,
		}
		for _, a := range r.Attachments() {
			c, err := a.Contents()
			if err != nil {
				return err
			}
			rec.Attachments = append(rec.Attachments, DocumentAttachment{
				Filename: a.Filename,
				Contents: base64.StdEncoding.EncodeToString(c),
			})
		}
		d.Records = append(d.Records, rec)
	}
	for _, c := range f.Folders() {
		d.Folders = append(d.Folders, c.Path())
		if err := d.addFolder(c); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges d into t: folders with make-folder semantics, records with
// Folder.PutRecord. Applying the same document twice changes nothing.
// It returns the number of folders and records applied.
func (d *Document) Apply(t *tree.Tree) (int, error) {
	if d.Version != documentVersion {
		return 0, fmt.Errorf("unsupported export version %d", d.Version)
	}

	for i, p := range d.Folders {
		if _, err := t.MakeFolder(p); err != nil {
			return i, fmt.Errorf("applying folder %q: %w", p, err)
		}
	}
	for i, rec := range d.Records {
		if err := applyRecord(t, rec); err != nil {
			return len(d.Folders) + i, fmt.Errorf("applying record %q in %q: %w", rec.Title, rec.Folder, err)
		}
	}
	return d.Len(), nil
}

func applyRecord(t *tree.Tree, rec DocumentRecord) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("parsing id: %w", err)
	}
	folder, err := t.MakeFolder(rec.Folder)
	if err != nil {
		return err
	}

	files := make([]tree.File, 0, len(rec.Attachments))
	for _, a := range rec.Attachments {
		contents, err := base64.StdEncoding.DecodeString(a.Contents)
		if err != nil {
			return fmt.Errorf("decoding contents of %q: %w", a.Filename, err)
		}
		files = append(files, tree.File{Filename: a.Filename, Contents: contents})
	}
	_, err = folder.PutRecord(id, rec.Title, rec.Username, rec.Password, files)
	return err
}

// Export writes the open container as a sealed TOML document to w.
func (s *Service) Export(sealer Sealer, w io.Writer) (int, error) {
	sess, err := s.open()
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	doc, err := Snapshot(sess.Tree())
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return 0, fmt.Errorf("encoding export: %w", err)
	}
	if err := sealer.Seal(&buf, w); err != nil {
		return 0, fmt.Errorf("sealing export: %w", err)
	}

	s.logger.Info("container exported", "path", sess.Path(), "entries", doc.Len())
	s.remember(sess.Path())
	return doc.Len(), nil
}

// Import reads a sealed export from r and merges it into the open container.
func (s *Service) Import(unsealer Unsealer, r io.Reader) (int, error) {
	var buf bytes.Buffer
	if err := unsealer.Unseal(r, &buf); err != nil {
		return 0, fmt.Errorf("unsealing export: %w", err)
	}

	var doc Document
	if _, err := toml.NewDecoder(&buf).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decoding export: %w", err)
	}

	sess, err := s.open()
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	n, err := doc.Apply(sess.Tree())
	if err != nil {
		return n, err
	}
	if err := sess.Save(); err != nil {
		return n, err
	}

	s.logger.Info("export imported", "path", sess.Path(), "entries", n)
	fmt.Fprintf(s.out, "Imported %d entries\n", n)
	s.remember(sess.Path())
	return n, nil
}
