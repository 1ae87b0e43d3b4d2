package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"

	"kv-go/internal/config"
	"kv-go/internal/errors"
	"kv-go/internal/kv"
)

type testEnv struct {
	cfg       *config.Config
	container string
	dir       string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewConfig(filepath.Join(dir, "home"))
	cfg.KDF = config.KDFConfig{Time: 1, MemoryKiB: 64, Threads: 1}
	cfg.Cache = config.CacheConfig{Type: "sqlite"}
	cfg.Backups = []config.BackupConfig{{Type: "filesystem", Name: "disk", Root: filepath.Join(dir, "backups")}}

	return &testEnv{cfg: cfg, container: filepath.Join(dir, "vault.kvlt"), dir: dir}
}

// run executes fn against a fresh app, as one CLI invocation would.
func (e *testEnv) run(t *testing.T, command string, opts kv.Options, stdin string, fn func(a *KVApp) error) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a, err := NewKVApp(e.cfg, opts, NewOperation(command, ""), IO{In: strings.NewReader(stdin), Out: &out, Err: &errOut})
	if err != nil {
		t.Fatalf("NewKVApp() error = %v", err)
	}
	runErr := fn(a)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return out.String(), errOut.String(), runErr
}

func TestKVApp_CommandsShareCachedCredentials(t *testing.T) {
	env := newTestEnv(t)
	const password = "correct horse battery staple"

	out, _, err := env.run(t, "create", kv.Options{Password: password, ContainerPath: env.container}, "", func(a *KVApp) error {
		return a.Create()
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.Contains(out, "Container created: "+env.container) {
		t.Errorf("create output = %q", out)
	}

	// No flags: the container and password come from the cache.
	if _, _, err := env.run(t, "set", kv.Options{}, "", func(a *KVApp) error {
		return a.SetEntry("mail/user", "alice")
	}); err != nil {
		t.Fatalf("SetEntry() error = %v", err)
	}

	out, _, err = env.run(t, "get", kv.Options{}, "", func(a *KVApp) error {
		return a.GetEntry("mail/user")
	})
	if err != nil {
		t.Fatalf("GetEntry() error = %v", err)
	}
	if out != "alice\n" {
		t.Errorf("get output = %q, want alice", out)
	}

	_, stderr, err := env.run(t, "get", kv.Options{}, "", func(a *KVApp) error {
		return a.GetEntry("mail/missing")
	})
	if !errors.IsNotFound(err) {
		t.Errorf("GetEntry(missing) error = %v, want not found", err)
	}
	if !strings.Contains(stderr, "WARN: entry not found") {
		t.Errorf("stderr = %q, want entry not found warning", stderr)
	}

	var ops []*kv.Operation
	env.run(t, "history", kv.Options{}, "", func(a *KVApp) error {
		ops, err = a.GetHistory(10)
		return err
	})
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}

	wantCommands := []string{"get", "get", "set", "create"}
	wantStatus := []string{"error", "success", "success", "success"}
	if len(ops) != len(wantCommands) {
		t.Fatalf("GetHistory() returned %d operations, want %d", len(ops), len(wantCommands))
	}
	for i, op := range ops {
		if op.Command != wantCommands[i] || op.Status != wantStatus[i] {
			t.Errorf("ops[%d] = %s/%s, want %s/%s", i, op.Command, op.Status, wantCommands[i], wantStatus[i])
		}
		if op.Container != env.container {
			t.Errorf("ops[%d].Container = %q, want %q", i, op.Container, env.container)
		}
		if op.FinishedAt == nil {
			t.Errorf("ops[%d] was not finished", i)
		}
	}
}

func TestKVApp_PromptsForPassword(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Cache = config.CacheConfig{Type: "none"}
	opts := kv.Options{Password: "s3cret-Pa55phrase!", ContainerPath: env.container}

	if _, _, err := env.run(t, "create", opts, "", func(a *KVApp) error { return a.Create() }); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	noPassword := kv.Options{ContainerPath: env.container}
	out, stderr, err := env.run(t, "ls", noPassword, "s3cret-Pa55phrase!\n", func(a *KVApp) error {
		return a.List("/")
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !strings.Contains(stderr, "Please inform the password:") {
		t.Errorf("stderr = %q, want password prompt", stderr)
	}
	if out != "0 entries\n" {
		t.Errorf("ls output = %q", out)
	}

	_, _, err = env.run(t, "ls", noPassword, "wrong\n", func(a *KVApp) error {
		return a.List("/")
	})
	if !errors.IsAuthFailed(err) {
		t.Errorf("List() with wrong password error = %v, want auth failure", err)
	}
}

func TestKVApp_ExportImport(t *testing.T) {
	env := newTestEnv(t)
	opts := kv.Options{Password: "export-test-Passw0rd!", ContainerPath: env.container}

	env.run(t, "create", opts, "", func(a *KVApp) error { return a.Create() })
	env.run(t, "set", opts, "", func(a *KVApp) error { return a.SetEntry("web/site", "hunter2") })

	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	identityPath := filepath.Join(env.dir, "key.txt")
	os.WriteFile(identityPath, []byte(id.String()+"\n"), 0o600)
	exportPath := filepath.Join(env.dir, "dump.age")

	out, _, err := env.run(t, "export", opts, "", func(a *KVApp) error {
		sealer, err := a.NewSealer([]string{id.Recipient().String()}, false)
		if err != nil {
			return err
		}
		return a.Export(sealer, exportPath)
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(out, "Exported 2 entries to "+exportPath) {
		t.Errorf("export output = %q", out)
	}

	other := kv.Options{Password: "other-container-Passw0rd!", ContainerPath: filepath.Join(env.dir, "other.kvlt")}
	env.run(t, "create", other, "", func(a *KVApp) error { return a.Create() })

	out, _, err = env.run(t, "import", other, "", func(a *KVApp) error {
		unsealer, err := a.NewUnsealer(identityPath, false)
		if err != nil {
			return err
		}
		return a.Import(unsealer, exportPath)
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !strings.Contains(out, "Imported 2 entries") {
		t.Errorf("import output = %q", out)
	}

	out, _, _ = env.run(t, "get", other, "", func(a *KVApp) error { return a.GetEntry("web/site") })
	if out != "hunter2\n" {
		t.Errorf("get after import = %q, want hunter2", out)
	}
}

func TestKVApp_SealerSelection(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, "export", kv.Options{}, "", func(a *KVApp) error {
		if _, err := a.NewSealer(nil, false); err == nil {
			t.Error("NewSealer() without recipients or passphrase expected error")
		}
		if _, err := a.NewSealer([]string{"age1x"}, true); err == nil {
			t.Error("NewSealer() with both recipients and passphrase expected error")
		}
		if _, err := a.NewUnsealer("", false); err == nil {
			t.Error("NewUnsealer() without identity or passphrase expected error")
		}
		return nil
	})
}

func TestKVApp_BackupRestore(t *testing.T) {
	env := newTestEnv(t)
	opts := kv.Options{Password: "backup-test-Passw0rd!", ContainerPath: env.container}
	env.run(t, "create", opts, "", func(a *KVApp) error { return a.Create() })

	out, _, err := env.run(t, "backup", opts, "", func(a *KVApp) error { return a.Backup() })
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if !strings.Contains(out, "Backed up "+env.container+" to disk:vault.kvlt/") {
		t.Errorf("backup output = %q", out)
	}

	out, _, err = env.run(t, "backup list", opts, "", func(a *KVApp) error { return a.ListBackups() })
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[1] != "1 snapshots" {
		t.Fatalf("backup list output = %q", out)
	}

	restored := filepath.Join(env.dir, "restored.kvlt")
	if _, _, err := env.run(t, "backup restore", opts, "", func(a *KVApp) error {
		return a.RestoreBackup(lines[0], restored)
	}); err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}

	want, _ := os.ReadFile(env.container)
	got, _ := os.ReadFile(restored)
	if !bytes.Equal(got, want) {
		t.Error("restored snapshot differs from the container")
	}
}

func TestKVApp_GeneratePassword(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, "passgen", kv.Options{}, "", func(a *KVApp) error {
		pw, err := a.GeneratePassword(0, true)
		if err != nil {
			t.Fatalf("GeneratePassword() error = %v", err)
		}
		if len(pw) != env.cfg.Passwords.Length {
			t.Errorf("len(GeneratePassword(0)) = %d, want %d", len(pw), env.cfg.Passwords.Length)
		}
		pw, _ = a.GeneratePassword(12, false)
		if len(pw) != 12 {
			t.Errorf("len(GeneratePassword(12)) = %d, want 12", len(pw))
		}
		return nil
	})
}

func TestNewKVApp_BadConfig(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Cache = config.CacheConfig{Type: "redis"}

	_, err := NewKVApp(env.cfg, kv.Options{}, NewOperation("ls", ""), IO{In: strings.NewReader(""), Out: &bytes.Buffer{}, Err: &bytes.Buffer{}})
	if err == nil {
		t.Fatal("NewKVApp() with unknown cache type expected error")
	}
}
