package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kv-go/internal/app"
	"kv-go/internal/config"
	"kv-go/internal/kv"
)

// globals holds the persistent flags shared by every command.
var globals kv.Options

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig() (*config.Config, app.Defaults, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, defaults, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.Load(defaults.ConfigPath, defaults.BaseDir)
	if err != nil {
		return nil, defaults, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a KVApp. The caller must defer app.Close().
// command and parameters are what the operation history records; never pass secrets.
func newApp(cmd *cobra.Command, command string, parameters ...string) (*app.KVApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	streams := app.IO{In: os.Stdin, Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
	a, err := app.NewKVApp(cfg, globals, app.NewOperation(command, strings.Join(parameters, " ")), streams)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "kv",
	Short:         "Encrypted hierarchical credential vault",
	SilenceErrors: true,
	SilenceUsage:  true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new empty container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "create")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Create()
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls SOURCE",
	Short: "List the entries of a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ls", args[0])
		if err != nil {
			return err
		}
		defer a.Close()
		return a.List(args[0])
	},
}

var putFileCmd = &cobra.Command{
	Use:   "put-file SOURCE DESTINATION",
	Short: "Store a local file in a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "put-file", args...)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.PutFile(args[0], args[1])
	},
}

var getFileCmd = &cobra.Command{
	Use:   "get-file SOURCE",
	Short: "Extract a stored file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd, "get-file", args[0])
		if err != nil {
			return err
		}
		defer a.Close()
		return a.GetFile(args[0], output)
	},
}

var setCmd = &cobra.Command{
	Use:   "set ENTRY_PATH ENTRY_VALUE",
	Short: "Set a key value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "set", args[0])
		if err != nil {
			return err
		}
		defer a.Close()
		return a.SetEntry(args[0], args[1])
	},
}

var getCmd = &cobra.Command{
	Use:   "get ENTRY_PATH",
	Short: "Print a key value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "get", args[0])
		if err != nil {
			return err
		}
		defer a.Close()
		return a.GetEntry(args[0])
	},
}

var delCmd = &cobra.Command{
	Use:   "del ENTRY_PATH",
	Short: "Delete a folder, key value or file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "del", args[0])
		if err != nil {
			return err
		}
		defer a.Close()
		return a.DelEntry(args[0])
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an age-encrypted export of the whole container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		recipients, _ := cmd.Flags().GetStringArray("recipient")
		passphrase, _ := cmd.Flags().GetBool("passphrase")

		a, err := newApp(cmd, "export", output)
		if err != nil {
			return err
		}
		defer a.Close()

		sealer, err := a.NewSealer(recipients, passphrase)
		if err != nil {
			return err
		}
		return a.Export(sealer, output)
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge an export into the container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("identity")
		passphrase, _ := cmd.Flags().GetBool("passphrase")

		a, err := newApp(cmd, "import", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		unsealer, err := a.NewUnsealer(identity, passphrase)
		if err != nil {
			return err
		}
		return a.Import(unsealer, args[0])
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the encrypted container to every backup target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "backup")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Backup()
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots of the container",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "backup list")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.ListBackups()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore SNAPSHOT",
	Short: "Write a snapshot to a new file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd, "backup restore", args[0], output)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.RestoreBackup(args[0], output)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(ops) == 0 {
			fmt.Fprintln(out, "No operations recorded.")
			return nil
		}
		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Fprintf(out, "#%d  %-15s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Command,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

var passgenCmd = &cobra.Command{
	Use:   "passgen",
	Short: "Print a generated password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		length, _ := cmd.Flags().GetInt("length")
		noSymbols, _ := cmd.Flags().GetBool("no-symbols")

		a, err := newApp(cmd, "passgen")
		if err != nil {
			return err
		}
		defer a.Close()

		pw, err := a.GeneratePassword(length, !noSymbols)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), pw)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Fprintf(out, "Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Fprintf(out, "Base Dir:  %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:   %s\n", cfg.LogDir)
		fmt.Fprintf(out, "KDF:       argon2id time=%d memory=%dKiB threads=%d\n", cfg.KDF.Time, cfg.KDF.MemoryKiB, cfg.KDF.Threads)
		fmt.Fprintf(out, "Passwords: length=%d symbols=%t\n", cfg.Passwords.Length, cfg.Passwords.Symbols)
		fmt.Fprintf(out, "Cache:     %s\n", cfg.Cache.Type)
		fmt.Fprintf(out, "State:     %s\n", cfg.State.Type)
		for _, b := range cfg.Backups {
			fmt.Fprintf(out, "Backup:    %s (%s) %s\n", b.Name, b.Type, b.Root)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globals.Password, "password", "p", "", "Container password")
	flags.StringVarP(&globals.ContainerPath, "file", "f", "", "Container file (default: last used)")
	flags.StringVarP(&globals.Keyfile, "keyfile", "k", "", "Keyfile mixed into the container key")
	flags.StringVar(&globals.Curdir, "curdir", "", "Directory relative paths are resolved against")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// backup subcommands
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupRestoreCmd.Flags().StringP("output", "o", "", "Path to write the snapshot to (must not exist)")
	backupRestoreCmd.MarkFlagRequired("output")

	// root commands
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(putFileCmd)
	rootCmd.AddCommand(getFileCmd)
	getFileCmd.Flags().StringP("output", "o", "", "Write the file here instead of stdout")
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(delCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "Write the export here instead of stdout")
	exportCmd.Flags().StringArray("recipient", nil, "age public key to encrypt to (repeatable)")
	exportCmd.Flags().Bool("passphrase", false, "Encrypt with a prompted passphrase")
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("identity", "", "age identity file")
	importCmd.Flags().Bool("passphrase", false, "Decrypt with a prompted passphrase")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(passgenCmd)
	passgenCmd.Flags().IntP("length", "l", 0, "Password length (default from config)")
	passgenCmd.Flags().Bool("no-symbols", false, "Only letters and digits")
	rootCmd.AddCommand(configCmd)
}
