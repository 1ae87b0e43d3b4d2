package container

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kv-go/internal/envelope"
	"kv-go/internal/errors"
	"kv-go/internal/testutil"
	"kv-go/internal/tree"
)

func createSession(t *testing.T, path string, creds envelope.Credentials) *Session {
	t.Helper()
	s, err := Create(path, creds, testutil.FastKDF())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func openSession(t *testing.T, path string, creds envelope.Credentials) *Session {
	t.Helper()
	s, err := Open(path, creds)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCreate_ThenOpenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kdbx")
	createSession(t, path, testutil.Password("pw"))

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("container not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	s := openSession(t, path, testutil.Password("pw"))
	if n := len(s.Root().Entries()); n != 0 {
		t.Errorf("root has %d entries, want 0", n)
	}
	if s.Root().Name() != "/" {
		t.Errorf("root name = %q, want %q", s.Root().Name(), "/")
	}
}

func TestCreate_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "existing.kdbx", []byte("precious"))

	_, err := Create(path, testutil.Password("pw"), testutil.FastKDF())
	if !errors.Is(err, errors.ErrAlreadyExists) {
		t.Fatalf("Create() error = %v, want ErrAlreadyExists", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "precious" {
		t.Errorf("existing file was modified: %q", got)
	}
}

func TestWriteFileExclusive(t *testing.T) {
	dir := t.TempDir()

	// A file that appears after Create's existence check must survive the first write.
	taken := testutil.WriteFile(t, dir, "taken.kdbx", []byte("precious"))
	if err := writeFileExclusive(taken, []byte("new")); !errors.Is(err, errors.ErrAlreadyExists) {
		t.Fatalf("writeFileExclusive() over existing file error = %v, want ErrAlreadyExists", err)
	}
	got, err := os.ReadFile(taken)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "precious" {
		t.Errorf("existing file was modified: %q", got)
	}

	fresh := filepath.Join(dir, "fresh.kdbx")
	if err := writeFileExclusive(fresh, []byte("new")); err != nil {
		t.Fatalf("writeFileExclusive() error = %v", err)
	}
	info, err := os.Stat(fresh)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 0600", perm)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".kv-tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.kdbx")
	createSession(t, path, testutil.Password("pw"))
	garbage := testutil.WriteFile(t, dir, "garbage.kdbx", []byte("this is not a container"))

	tests := []struct {
		name  string
		path  string
		creds envelope.Credentials
		want  error
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.kdbx"), creds: testutil.Password("pw"), want: errors.ErrNotFound},
		{name: "wrong password", path: path, creds: testutil.Password("nope"), want: errors.ErrAuthFailed},
		{name: "not a container", path: garbage, creds: testutil.Password("pw"), want: errors.ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.path, tt.creds)
			if !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
			if s != nil {
				t.Error("Open() returned a session alongside an error")
			}
		})
	}
}

func TestSetValue_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kdbx")
	s := createSession(t, path, testutil.Password("pw"))

	dir, name := tree.SplitEntryPath("dir/name")
	folder, err := s.MakeFolder(dir)
	if err != nil {
		t.Fatalf("MakeFolder() error = %v", err)
	}
	if _, err := folder.SetValue(name, "value"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened := openSession(t, path, testutil.Password("pw"))
	e, err := reopened.ResolveEntry("dir/name")
	if err != nil {
		t.Fatalf("ResolveEntry() error = %v", err)
	}
	v, err := e.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if v != "value" {
		t.Errorf("Value() = %q, want %q", v, "value")
	}
}

func TestDeepFolders_SurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kdbx")
	s := createSession(t, path, testutil.Password("pw"))

	if _, err := s.MakeFolder(strings.Repeat("d/", 1100)); !errors.Is(err, errors.ErrInvalidPath) {
		t.Fatalf("MakeFolder(1100 levels) error = %v, want ErrInvalidPath", err)
	}

	deepest := strings.TrimSuffix(strings.Repeat("d/", tree.MaxDepth), "/")
	folder, err := s.MakeFolder(deepest)
	if err != nil {
		t.Fatalf("MakeFolder(%d levels) error = %v", tree.MaxDepth, err)
	}
	if _, err := folder.SetValue("k", "v"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened := openSession(t, path, testutil.Password("pw"))
	e, err := reopened.ResolveEntry(deepest + "/k")
	if err != nil {
		t.Fatalf("ResolveEntry() error = %v", err)
	}
	if v, _ := e.Value(); v != "v" {
		t.Errorf("Value() = %q, want %q", v, "v")
	}
}

func TestPutFile_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.kdbx")
	local := testutil.WriteFile(t, dir, "test.txt", []byte("File contents"))
	s := createSession(t, path, testutil.Password("pw"))

	contents, err := os.ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	folder, err := s.MakeFolder("the_dir")
	if err != nil {
		t.Fatalf("MakeFolder() error = %v", err)
	}
	if _, err := folder.PutFile(filepath.Base(local), contents); err != nil {
		t.Fatalf("PutFile() error = %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened := openSession(t, path, testutil.Password("pw"))
	e, err := reopened.ResolveEntry("the_dir/test.txt")
	if err != nil {
		t.Fatalf("ResolveEntry() error = %v", err)
	}
	got, err := e.Contents()
	if err != nil {
		t.Fatalf("Contents() error = %v", err)
	}
	if !bytes.Equal(got, []byte("File contents")) {
		t.Errorf("Contents() = %q, want %q", got, "File contents")
	}
}

func TestResolveEntry_MissingIsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kdbx")
	s := createSession(t, path, testutil.Password("pw"))

	if _, err := s.ResolveEntry("/missing/path"); !errors.IsNotFound(err) {
		t.Errorf("ResolveEntry() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteKeyValue_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kdbx")
	s := createSession(t, path, testutil.Password("pw"))

	if _, err := s.Root().SetValue("the_value", "x"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	e, err := s.ResolveEntry("the_value")
	if err != nil {
		t.Fatalf("ResolveEntry() error = %v", err)
	}
	if err := e.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened := openSession(t, path, testutil.Password("pw"))
	if _, err := reopened.ResolveEntry("the_value"); !errors.IsNotFound(err) {
		t.Errorf("ResolveEntry() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSave_FreshNonceAndNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.kdbx")
	s := createSession(t, path, testutil.Password("pw"))

	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(first, second) {
		t.Error("two saves produced identical bytes; seed and nonce must be fresh")
	}

	h1, _, err := ParseHeader(first)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	h2, _, err := ParseHeader(second)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if !bytes.Equal(h1.KDF.Salt, h2.KDF.Salt) {
		t.Error("KDF salt changed between saves of one session")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".kv-tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSave_FailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.kdbx")
	s := createSession(t, path, testutil.Password("pw"))
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// A directory in the way makes the rename fail after the temp file is written.
	blocked := filepath.Join(dir, "blocked")
	if err := os.MkdirAll(filepath.Join(blocked, "child"), 0755); err != nil {
		t.Fatal(err)
	}
	s.path = blocked
	if err := s.Save(); err == nil {
		t.Fatal("Save() over a non-empty directory succeeded")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("failed save modified the previous container")
	}
}

func TestKeyfileOnly(t *testing.T) {
	dir := t.TempDir()
	keyPath := testutil.WriteFile(t, dir, "key.bin", []byte("0123456789abcdef"))
	digest, err := envelope.ReadKeyfile(keyPath)
	if err != nil {
		t.Fatalf("ReadKeyfile() error = %v", err)
	}
	creds := envelope.Credentials{Keyfile: digest}

	path := filepath.Join(dir, "db.kdbx")
	createSession(t, path, creds)
	openSession(t, path, creds)

	if _, err := Open(path, testutil.Password("anything")); !errors.IsAuthFailed(err) {
		t.Errorf("Open() with password instead of keyfile error = %v, want ErrAuthFailed", err)
	}
}

func TestClose_PreventsSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kdbx")
	s, err := Create(path, testutil.Password("pw"), testutil.FastKDF())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s.Close()
	if err := s.Save(); err == nil {
		t.Error("Save() after Close() succeeded")
	}
}
