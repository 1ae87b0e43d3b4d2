// Package app wires configuration, storage and logging into a kv.Service for the CLI.
package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"kv-go/internal/backup"
	"kv-go/internal/cache"
	"kv-go/internal/config"
	"kv-go/internal/database"
	"kv-go/internal/envelope"
	"kv-go/internal/export"
	"kv-go/internal/kv"
	"kv-go/internal/passgen"
)

// KVApp is the application layer between the CLI and kv.Service.
// It constructs all dependencies from config, records the running command in
// the operation history and releases resources on Close.
type KVApp struct {
	cfg      *config.Config
	opts     kv.Options
	state    *database.StateDatabase
	history  kv.History
	prompter kv.Prompter
	service  *kv.Service
	op       *Operation
	logger   kv.Logger
	logFile  *os.File
	out      io.Writer
}

// IO groups the streams the app talks to. Prompts and log warnings go to Err.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// NewKVApp creates a fully wired KVApp from the given config and global flags.
// The caller must call Close when done.
func NewKVApp(cfg *config.Config, opts kv.Options, op *Operation, streams IO) (*KVApp, error) {
	opID := uuid.New().String()[:8]
	slogger, logFile, err := newLogger(cfg.LogDir, opID, streams.Err)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	fail := func(state *database.StateDatabase, err error) (*KVApp, error) {
		if state != nil {
			state.Close()
		}
		logFile.Close()
		return nil, err
	}

	state, err := database.NewStateFromConfig(cfg.State, kv.RealClock{})
	if err != nil {
		return fail(nil, fmt.Errorf("opening state database: %w", err))
	}

	// Interface values stay nil when the state database is disabled.
	var (
		history    kv.History
		stateCache kv.CredentialCache
	)
	if state != nil {
		if err := state.CheckMigrations(); err != nil {
			return fail(state, fmt.Errorf("state database schema out of date: %w", err))
		}
		history, stateCache = state, state
	}

	credCache, err := cache.NewCacheFromConfig(cfg.Cache, stateCache, logger)
	if err != nil {
		return fail(state, fmt.Errorf("creating cache: %w", err))
	}

	targets, err := backup.NewTargetsFromConfig(cfg.Backups)
	if err != nil {
		return fail(state, fmt.Errorf("creating backup targets: %w", err))
	}

	gen, err := passgen.New(cfg.Passwords.Length, cfg.Passwords.Symbols)
	if err != nil {
		return fail(state, fmt.Errorf("creating password generator: %w", err))
	}

	opts.KDF = envelope.KDFParams{
		Time:    cfg.KDF.Time,
		Memory:  cfg.KDF.MemoryKiB,
		Threads: cfg.KDF.Threads,
	}

	prompter := newConsolePrompter(streams.In, streams.Err)
	svc := kv.NewService(opts, credCache, history, targets, gen, prompter, logger, kv.RealClock{}, streams.Out)

	logger.Debug("command started", "command", op.Command)
	return &KVApp{
		cfg:      cfg,
		opts:     opts,
		state:    state,
		history:  history,
		prompter: prompter,
		service:  svc,
		op:       op,
		logger:   logger,
		logFile:  logFile,
		out:      streams.Out,
	}, nil
}

// begin records the operation in the history. History failures never block a command.
func (a *KVApp) begin() {
	if a.history == nil || a.op.Persisted() {
		return
	}
	container, _ := a.service.ContainerPath()
	id, err := a.history.Start(a.op.Command, a.op.Parameters, container)
	if err != nil {
		a.logger.Warn("failed to record operation", "error", err)
		return
	}
	a.op.ID = id
}

func (a *KVApp) Create() error {
	a.begin()
	_, err := a.service.Create()
	return a.op.Record(err)
}

func (a *KVApp) List(source string) error {
	a.begin()
	_, err := a.service.List(source)
	return a.op.Record(err)
}

func (a *KVApp) PutFile(source, destination string) error {
	a.begin()
	return a.op.Record(a.service.PutFile(source, destination))
}

func (a *KVApp) GetFile(source, output string) error {
	a.begin()
	_, err := a.service.GetFile(source, output)
	return a.op.Record(err)
}

func (a *KVApp) SetEntry(entryPath, value string) error {
	a.begin()
	return a.op.Record(a.service.SetEntry(entryPath, value))
}

func (a *KVApp) GetEntry(entryPath string) error {
	a.begin()
	_, err := a.service.GetEntry(entryPath)
	return a.op.Record(err)
}

func (a *KVApp) DelEntry(entryPath string) error {
	a.begin()
	_, err := a.service.DelEntry(entryPath)
	return a.op.Record(err)
}

// NewSealer builds the export encryption from either recipients or a prompted passphrase.
func (a *KVApp) NewSealer(recipients []string, passphrase bool) (kv.Sealer, error) {
	switch {
	case passphrase && len(recipients) > 0:
		return nil, fmt.Errorf("use either --recipient or --passphrase, not both")
	case passphrase:
		pw, err := a.prompter.Prompt("Please inform the export passphrase:")
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		return export.NewPassphraseSealer(pw, 0)
	case len(recipients) > 0:
		return export.NewRecipientSealer(recipients)
	default:
		return nil, fmt.Errorf("export needs --recipient or --passphrase")
	}
}

// NewUnsealer builds the import decryption from an identity file or a prompted passphrase.
func (a *KVApp) NewUnsealer(identity string, passphrase bool) (kv.Unsealer, error) {
	switch {
	case passphrase && identity != "":
		return nil, fmt.Errorf("use either --identity or --passphrase, not both")
	case passphrase:
		pw, err := a.prompter.Prompt("Please inform the export passphrase:")
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		return export.NewPassphraseUnsealer(pw)
	case identity != "":
		return export.NewIdentityUnsealer(a.resolvePath(identity))
	default:
		return nil, fmt.Errorf("import needs --identity or --passphrase")
	}
}

// Export writes the sealed export to output, or to stdout when output is empty.
func (a *KVApp) Export(sealer kv.Sealer, output string) error {
	a.begin()
	if output == "" {
		_, err := a.service.Export(sealer, a.out)
		return a.op.Record(err)
	}

	dest := a.resolvePath(output)
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return a.op.Record(fmt.Errorf("creating %s: %w", dest, err))
	}
	n, err := a.service.Export(sealer, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing %s: %w", dest, closeErr)
	}
	if err != nil {
		os.Remove(dest)
		return a.op.Record(err)
	}
	fmt.Fprintf(a.out, "Exported %d entries to %s\n", n, dest)
	return a.op.Record(nil)
}

func (a *KVApp) Import(unsealer kv.Unsealer, input string) error {
	a.begin()
	f, err := os.Open(a.resolvePath(input))
	if err != nil {
		return a.op.Record(fmt.Errorf("opening export: %w", err))
	}
	defer f.Close()

	_, err = a.service.Import(unsealer, f)
	return a.op.Record(err)
}

func (a *KVApp) Backup() error {
	a.begin()
	_, err := a.service.Backup()
	return a.op.Record(err)
}

func (a *KVApp) ListBackups() error {
	a.begin()
	_, err := a.service.ListBackups()
	return a.op.Record(err)
}

func (a *KVApp) RestoreBackup(ref, output string) error {
	a.begin()
	return a.op.Record(a.service.RestoreBackup(ref, output))
}

// GetHistory returns the most recent operations. Listing is not itself recorded.
func (a *KVApp) GetHistory(limit int) ([]*kv.Operation, error) {
	return a.service.GetHistory(limit)
}

// GeneratePassword returns a new password. Zero length uses the configured length.
func (a *KVApp) GeneratePassword(length int, symbols bool) (string, error) {
	if length == 0 {
		length = a.cfg.Passwords.Length
	}
	gen, err := passgen.New(length, symbols)
	if err != nil {
		return "", err
	}
	return gen.Generate()
}

func (a *KVApp) resolvePath(p string) string {
	if a.opts.Curdir != "" && !filepath.IsAbs(p) {
		return filepath.Join(a.opts.Curdir, p)
	}
	return p
}

// Close finalizes the operation record and closes all resources.
func (a *KVApp) Close() error {
	var firstErr error

	if a.history != nil && a.op.Persisted() {
		if err := a.history.Finish(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}
	if a.state != nil {
		if err := a.state.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing state database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
