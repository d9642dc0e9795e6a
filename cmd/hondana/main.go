package main

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/kurobane/hondana/internal/backup"
	"github.com/kurobane/hondana/internal/db"
	"github.com/kurobane/hondana/internal/prefs"
	"github.com/kurobane/hondana/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hondana",
		Short:         "Library snapshot, restore and migration tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBackupCmd(), newRestoreCmd(), newAutoCmd(), newMigrateCmd(), newInspectCmd())
	return root
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Build a snapshot of the library and write it to the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			sink, err := storage.NewLocal(envOr("HONDANA_BACKUP_DIR", "backups"))
			if err != nil {
				return err
			}

			builder := &backup.Builder{DB: database}
			snap, err := builder.Build(cmd.Context(), func(label string) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\r%-70.70s", label)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr())

			name := fmt.Sprintf("hondana_%d.bkp.gz", time.Now().UnixMilli())
			if err := sink.Write(name, backup.Encode(snap)); err != nil {
				return err
			}
			if !sink.Validate(name) {
				return fmt.Errorf("backup %s failed validation after write", name)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d books, %d categories)\n",
				name, len(snap.Library), len(snap.Categories))
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	var showProgress bool
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Merge a snapshot file into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSnapshotFile(args[0])
			if err != nil {
				return err
			}
			snap, err := backup.LoadDump(data)
			if err != nil {
				return err
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			store, err := openPrefs()
			if err != nil {
				return err
			}

			engine := &backup.Engine{DB: database, Settings: store}
			var progress backup.ProgressFunc
			if showProgress {
				progress = func(i, n int, title string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\r[%d/%d] %-60.60s", i+1, n, title)
				}
			}
			result, err := engine.RestoreWithProgress(cmd.Context(), snap, progress)
			if showProgress {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d books and %d chapters\n",
				result.BooksRestored, result.ChaptersRestored)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showProgress, "progress", false, "print per-book progress")
	return cmd
}

func newAutoCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Run the automatic snapshot scheduler once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			store, err := openPrefs()
			if err != nil {
				return err
			}
			sink, err := storage.NewLocal(envOr("HONDANA_BACKUP_DIR", "backups"))
			if err != nil {
				return err
			}

			scheduler := &backup.Scheduler{
				Builder: &backup.Builder{DB: database},
				Storage: sink,
				Prefs:   store,
			}
			ran, err := scheduler.MaybeRun(cmd.Context(), force)
			if err != nil {
				return err
			}
			if ran {
				fmt.Fprintln(cmd.OutOrStdout(), "Backup written")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "back up regardless of the configured interval")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open the store and bring its schema up to the current version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Migration runs as part of opening the store.
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			version, err := database.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Store is at schema version %d\n", version)
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Decode a snapshot file and print its contents summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSnapshotFile(args[0])
			if err != nil {
				return err
			}
			snap, err := backup.LoadDump(data)
			if err != nil {
				return err
			}

			chapters := 0
			for _, b := range snap.Library {
				chapters += len(b.Chapters)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d books, %d chapters, %d categories\n",
				len(snap.Library), chapters, len(snap.Categories))
			return nil
		},
	}
}

func openDB() (*db.DB, error) {
	return db.New(envOr("HONDANA_DB", "data/hondana.db"))
}

func openPrefs() (*prefs.Store, error) {
	return prefs.Open(envOr("HONDANA_PREFS", "data/prefs.yaml"))
}

// readSnapshotFile loads a snapshot from an arbitrary path, transparently
// decompressing gzip files.
func readSnapshotFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw, nil
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
