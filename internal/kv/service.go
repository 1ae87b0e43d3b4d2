// Package kv is the orchestration layer between the CLI and the container engine.
// It resolves credentials and paths, drives one open-mutate-save cycle per call
// and writes user-facing output.
package kv

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"kv-go/internal/container"
	"kv-go/internal/envelope"
	"kv-go/internal/errors"
	"kv-go/internal/tree"
)

// weakScore is the zxcvbn score below which a chosen password triggers a warning.
const weakScore = 3

// Options carry the global command-line flags and the KDF cost for new containers.
type Options struct {
	Password      string
	ContainerPath string
	Keyfile       string
	Curdir        string
	KDF           envelope.KDFParams
}

// Service implements the vault commands. Output goes to out; errors are returned.
type Service struct {
	opts      Options
	cache     CredentialCache
	history   History
	backups   []BackupTarget
	passwords PasswordPolicy
	prompter  Prompter
	logger    Logger
	clock     Clock
	out       io.Writer

	password string // resolved during open, remembered afterwards
}

// NewService creates a Service with the provided dependencies.
// history and backups may be nil when those features are disabled.
func NewService(opts Options, cache CredentialCache, history History, backups []BackupTarget, passwords PasswordPolicy, prompter Prompter, logger Logger, clock Clock, out io.Writer) *Service {
	return &Service{
		opts:      opts,
		cache:     cache,
		history:   history,
		backups:   backups,
		passwords: passwords,
		prompter:  prompter,
		logger:    logger,
		clock:     clock,
		out:       out,
		password:  opts.Password,
	}
}

// Create writes a new empty container. Without a password one is generated and printed.
func (s *Service) Create() (string, error) {
	path, err := s.containerPath()
	if err != nil {
		return "", err
	}

	password := s.opts.Password
	if password == "" {
		if password, err = s.passwords.Generate(); err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		fmt.Fprintf(s.out, "Generated password: %s\n", password)
	} else if score := s.passwords.Score(password); score < weakScore {
		s.logger.Warn("weak password", "score", score)
	}

	creds, keyfile, err := s.credentials(path, password)
	if err != nil {
		return "", err
	}

	sess, err := container.Create(path, creds, s.opts.KDF)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	sess.Close()

	s.logger.Info("container created", "path", path)
	fmt.Fprintf(s.out, "Container created: %s\n", path)

	s.password = password
	if err := s.cache.Remember(path, Credential{Password: password, Keyfile: keyfile}); err != nil {
		s.logger.Warn("failed to update cache", "error", err)
	}
	return path, nil
}

// List prints the direct children of the folder at source followed by a count line.
func (s *Service) List(source string) ([]tree.Entry, error) {
	sess, err := s.open()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	folder, err := sess.ResolveFolder(source)
	if err != nil {
		s.logger.Warn("directory not found", "path", source)
		return nil, fmt.Errorf("directory not found: %s: %w", source, errors.ErrNotFound)
	}

	entries := folder.Entries()
	for _, e := range entries {
		fmt.Fprintln(s.out, e.String())
	}
	fmt.Fprintf(s.out, "%d entries\n", len(entries))
	s.remember(sess.Path())
	return entries, nil
}

// SetEntry stores value under entryPath, creating folders as needed.
func (s *Service) SetEntry(entryPath, value string) error {
	sess, err := s.open()
	if err != nil {
		return err
	}
	defer sess.Close()

	dir, name := tree.SplitEntryPath(entryPath)
	folder, err := sess.MakeFolder(dir)
	if err != nil {
		return err
	}
	if _, err := folder.SetValue(name, value); err != nil {
		return err
	}
	if err := sess.Save(); err != nil {
		return err
	}

	s.logger.Info("value set", "path", entryPath)
	s.remember(sess.Path())
	return nil
}

// GetEntry prints the value of the KeyValue at entryPath.
func (s *Service) GetEntry(entryPath string) (string, error) {
	sess, err := s.open()
	if err != nil {
		return "", err
	}
	defer sess.Close()

	e, err := s.resolveEntry(sess, entryPath)
	if err != nil || e.Kind() != tree.KindKeyValue {
		return "", fmt.Errorf("key value not found: %s: %w", entryPath, errors.ErrNotFound)
	}

	value, err := e.Value()
	if err != nil {
		return "", err
	}
	fmt.Fprintln(s.out, value)
	s.remember(sess.Path())
	return value, nil
}

// GetFile writes the File at source to output, or to out when output is empty.
func (s *Service) GetFile(source, output string) ([]byte, error) {
	sess, err := s.open()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	e, err := s.resolveEntry(sess, source)
	if err != nil || e.Kind() != tree.KindFile {
		return nil, fmt.Errorf("file not found: %s: %w", source, errors.ErrNotFound)
	}

	contents, err := e.Contents()
	if err != nil {
		return nil, err
	}
	if output != "" {
		dest := s.resolvePath(output)
		if err := os.WriteFile(dest, contents, 0600); err != nil {
			return nil, fmt.Errorf("writing %s: %w", dest, err)
		}
		s.logger.Info("file extracted", "path", source, "output", dest)
	} else if _, err := s.out.Write(contents); err != nil {
		return nil, fmt.Errorf("writing output: %w", err)
	}
	s.remember(sess.Path())
	return contents, nil
}

// PutFile stores the local file source under the folder destination, named by its base name.
func (s *Service) PutFile(source, destination string) error {
	local := s.resolvePath(source)
	contents, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("reading %s: %w", local, err)
	}

	sess, err := s.open()
	if err != nil {
		return err
	}
	defer sess.Close()

	folder, err := sess.MakeFolder(destination)
	if err != nil {
		return err
	}
	if _, err := folder.PutFile(filepath.Base(local), contents); err != nil {
		return err
	}
	if err := sess.Save(); err != nil {
		return err
	}

	s.logger.Info("file stored", "source", local, "folder", destination, "size", len(contents))
	s.remember(sess.Path())
	return nil
}

// DelEntry removes the entry at entryPath after printing what it removes.
func (s *Service) DelEntry(entryPath string) (tree.Entry, error) {
	sess, err := s.open()
	if err != nil {
		return tree.Entry{}, err
	}
	defer sess.Close()

	e, err := s.resolveEntry(sess, entryPath)
	if err != nil {
		return tree.Entry{}, fmt.Errorf("entry not found: %s: %w", entryPath, errors.ErrNotFound)
	}

	fmt.Fprintf(s.out, "Removing entry: %s\n", e)
	if err := e.Delete(); err != nil {
		return tree.Entry{}, err
	}
	if err := sess.Save(); err != nil {
		return tree.Entry{}, err
	}

	s.logger.Info("entry removed", "path", entryPath, "kind", e.Kind().String())
	s.remember(sess.Path())
	return e, nil
}

// resolveEntry logs which part of the path was missing before returning NotFound.
func (s *Service) resolveEntry(sess *container.Session, entryPath string) (tree.Entry, error) {
	e, err := sess.ResolveEntry(entryPath)
	var nf *errors.NotFoundError
	if errors.As(err, &nf) {
		switch nf.What {
		case "folder":
			s.logger.Warn("directory not found", "path", entryPath)
		default:
			s.logger.Warn("entry not found", "path", entryPath)
		}
	}
	return e, err
}

func (s *Service) open() (*container.Session, error) {
	path, err := s.containerPath()
	if err != nil {
		return nil, err
	}

	password, err := s.resolvePassword(path)
	if err != nil {
		return nil, err
	}
	creds, _, err := s.credentials(path, password)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("opening container", "path", path)
	sess, err := container.Open(path, creds)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ContainerPath returns the absolute path of the container commands operate on.
func (s *Service) ContainerPath() (string, error) { return s.containerPath() }

// containerPath resolves the container from the flag or the cache's last container.
func (s *Service) containerPath() (string, error) {
	path := s.opts.ContainerPath
	if path == "" {
		last, err := s.cache.LastContainer()
		if err != nil {
			s.logger.Warn("failed to read cache", "error", err)
		}
		path = last
	}
	if path == "" {
		return "", fmt.Errorf("container path not informed")
	}

	abs, err := filepath.Abs(s.resolvePath(path))
	if err != nil {
		return "", fmt.Errorf("resolving container path: %w", err)
	}
	return abs, nil
}

func (s *Service) resolvePassword(path string) (string, error) {
	if s.password != "" {
		return s.password, nil
	}
	if cred := s.cached(path); cred != nil && cred.Password != "" {
		s.password = cred.Password
		return s.password, nil
	}

	typed, err := s.prompter.Prompt("Please inform the password:")
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	s.password = typed
	return typed, nil
}

// keyfilePath returns the absolute keyfile from the flag or the cache, "" if none.
func (s *Service) keyfilePath(path string) (string, error) {
	keyfile := s.opts.Keyfile
	if keyfile == "" {
		if cred := s.cached(path); cred != nil {
			keyfile = cred.Keyfile
		}
	}
	if keyfile == "" {
		return "", nil
	}
	return filepath.Abs(s.resolvePath(keyfile))
}

// credentials builds envelope credentials for path and returns the keyfile path used.
func (s *Service) credentials(path, password string) (envelope.Credentials, string, error) {
	creds := envelope.Credentials{Password: []byte(password)}

	keyfile, err := s.keyfilePath(path)
	if err != nil {
		return creds, "", fmt.Errorf("resolving keyfile: %w", err)
	}
	if keyfile != "" {
		if creds.Keyfile, err = envelope.ReadKeyfile(keyfile); err != nil {
			return creds, "", err
		}
	}
	if len(creds.Password) == 0 && len(creds.Keyfile) == 0 {
		return creds, "", errors.ErrNoCredentials
	}
	return creds, keyfile, nil
}

func (s *Service) cached(path string) *Credential {
	cred, err := s.cache.Lookup(path)
	if err != nil {
		s.logger.Warn("failed to read cache", "error", err)
		return nil
	}
	return cred
}

// remember records the credentials that just worked for path.
// Cache failures are logged only; the command itself already succeeded.
func (s *Service) remember(path string) {
	keyfile, err := s.keyfilePath(path)
	if err != nil {
		s.logger.Warn("failed to resolve keyfile for cache", "error", err)
	}
	if err := s.cache.Remember(path, Credential{Password: s.password, Keyfile: keyfile}); err != nil {
		s.logger.Warn("failed to update cache", "error", err)
	}
}

// resolvePath joins p onto the --curdir override when one was given.
func (s *Service) resolvePath(p string) string {
	if s.opts.Curdir != "" && !filepath.IsAbs(p) {
		return filepath.Join(s.opts.Curdir, p)
	}
	return p
}
