package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"kv-go/internal/errors"
	"kv-go/internal/tree"
)

type payloadWriter struct {
	buf bytes.Buffer
	err error
}

func (w *payloadWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *payloadWriter) count(n int) {
	if uint64(n) > math.MaxUint32 {
		w.err = fmt.Errorf("length %d exceeds format limit", n)
		return
	}
	w.u32(uint32(n))
}

func (w *payloadWriter) bytes(b []byte) {
	w.count(len(b))
	w.buf.Write(b)
}

func (w *payloadWriter) str(s string) { w.bytes([]byte(s)) }

func (w *payloadWriter) id(id uuid.UUID) { w.buf.Write(id[:]) }

func marshalPayload(t *tree.Tree) ([]byte, error) {
	w := &payloadWriter{}

	pool := t.Pool()
	ids := pool.IDs()
	w.count(len(ids))
	for _, id := range ids {
		data, _ := pool.Get(id)
		w.u32(id)
		w.bytes(data)
	}

	root := t.Root()
	w.id(root.ID)
	writeFolder(w, root)

	if w.err != nil {
		return nil, fmt.Errorf("encoding payload: %w", w.err)
	}
	return w.buf.Bytes(), nil
}

func writeFolder(w *payloadWriter, f *tree.Folder) {
	folders := f.Folders()
	w.count(len(folders))
	for _, c := range folders {
		w.id(c.ID)
		w.str(c.Name())
		writeFolder(w, c)
	}

	records := f.Records()
	w.count(len(records))
	for _, r := range records {
		w.id(r.ID)
		w.str(r.Title)
		w.str(r.Username)
		w.str(r.Password)
		attachments := r.Attachments()
		w.count(len(attachments))
		for _, a := range attachments {
			w.str(a.Filename)
			w.u32(a.BlobID)
		}
	}
}

type payloadReader struct {
	data []byte
	off  int
	err  error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.off {
		r.err = errors.Corruptf("payload truncated at offset %d", r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *payloadReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *payloadReader) bytes() []byte {
	n := r.u32()
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *payloadReader) str() string { return string(r.bytes()) }

func (r *payloadReader) id() uuid.UUID {
	var id uuid.UUID
	copy(id[:], r.take(len(id)))
	return id
}

func unmarshalPayload(data []byte) (*tree.Tree, error) {
	r := &payloadReader{data: data}

	pool := tree.NewPool()
	n := r.u32()
	for i := uint32(0); i < n && r.err == nil; i++ {
		id := r.u32()
		blob := r.bytes()
		if r.err != nil {
			break
		}
		if err := pool.Restore(id, blob); err != nil {
			return nil, errors.Corruptf("%v", err)
		}
	}

	t := tree.NewWithRoot(r.id(), pool)
	if err := readFolder(r, t.Root(), 0); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(r.data) {
		return nil, errors.Corruptf("%d trailing bytes after payload", len(r.data)-r.off)
	}

	pool.Prune()
	return t, nil
}

func readFolder(r *payloadReader, f *tree.Folder, depth int) error {
	if depth > tree.MaxDepth {
		return errors.Corruptf("folders nested deeper than %d", tree.MaxDepth)
	}

	n := r.u32()
	for i := uint32(0); i < n && r.err == nil; i++ {
		id := r.id()
		name := r.str()
		if r.err != nil {
			break
		}
		child, err := f.AttachFolder(id, name)
		if err != nil {
			return errors.Corruptf("%v", err)
		}
		if err := readFolder(r, child, depth+1); err != nil {
			return err
		}
	}

	n = r.u32()
	for i := uint32(0); i < n && r.err == nil; i++ {
		id := r.id()
		title := r.str()
		username := r.str()
		password := r.str()
		var refs []tree.AttachmentRef
		m := r.u32()
		for j := uint32(0); j < m && r.err == nil; j++ {
			filename := r.str()
			refs = append(refs, tree.AttachmentRef{Filename: filename, BlobID: r.u32()})
		}
		if r.err != nil {
			break
		}
		if _, err := f.AttachRecord(id, title, username, password, refs); err != nil {
			return errors.Corruptf("%v", err)
		}
	}
	return r.err
}
