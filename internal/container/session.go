package container

import (
	"fmt"
	"os"

	"kv-go/internal/envelope"
	"kv-go/internal/errors"
	"kv-go/internal/tree"
)

// Session is one open container. All changes stay in memory until Save.
type Session struct {
	path string
	tree *tree.Tree
	kdf  envelope.KDFParams
	key  []byte
}

// Create writes a new empty container at path. It never overwrites an existing file.
// kdf supplies the cost parameters; a fresh salt is always drawn.
func Create(path string, creds envelope.Credentials, kdf envelope.KDFParams) (*Session, error) {
	if _, err := os.Lstat(path); err == nil {
		return nil, fmt.Errorf("container %s: %w", path, errors.ErrAlreadyExists)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}

	params, err := kdf.WithFreshSalt()
	if err != nil {
		return nil, err
	}
	key, err := envelope.DeriveKey(creds, params)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	s := &Session{path: path, tree: tree.New(), kdf: params, key: key}
	if err := s.write(writeFileExclusive); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Open reads and decrypts the container at path.
func Open(path string, creds envelope.Credentials) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("container %s: %w", path, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("reading container: %w", err)
	}

	t, h, key, err := decode(data, creds)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Session{path: path, tree: t, kdf: h.KDF, key: key}, nil
}

// Save re-encodes the whole tree with a fresh seed and nonce and atomically replaces the file.
func (s *Session) Save() error {
	return s.write(writeFileAtomic)
}

func (s *Session) write(publish func(path string, data []byte) error) error {
	if s.key == nil {
		return fmt.Errorf("session for %s is closed", s.path)
	}
	h, err := NewHeader(s.kdf)
	if err != nil {
		return err
	}
	data, err := Encode(s.tree, h, s.key)
	if err != nil {
		return fmt.Errorf("encoding container: %w", err)
	}
	if err := publish(s.path, data); err != nil {
		return fmt.Errorf("saving %s: %w", s.path, err)
	}
	return nil
}

// Close wipes the cached key. The session cannot be saved afterwards.
func (s *Session) Close() {
	envelope.Zero(s.key)
	s.key = nil
}

func (s *Session) Path() string            { return s.path }
func (s *Session) Tree() *tree.Tree        { return s.tree }
func (s *Session) Root() *tree.Folder      { return s.tree.Root() }
func (s *Session) KDF() envelope.KDFParams { return s.kdf }

func (s *Session) ResolveFolder(path string) (*tree.Folder, error) {
	return s.tree.ResolveFolder(path)
}

func (s *Session) MakeFolder(path string) (*tree.Folder, error) {
	return s.tree.MakeFolder(path)
}

func (s *Session) ResolveEntry(path string) (tree.Entry, error) {
	return s.tree.ResolveEntry(path)
}
