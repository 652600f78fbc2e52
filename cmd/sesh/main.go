// sesh is a developer tool for poking at a message store: it opens the
// encrypted database with a password and prints recent rows.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sesh-im/go-sesh/config"
	"github.com/sesh-im/go-sesh/crypto"
	db "github.com/sesh-im/go-sesh/internal/db"
)

var (
	rootDir  string
	password string
	limit    int
)

func openDatabase() (*db.Database, error) {
	c := config.NewConfig(config.WithRootDir(rootDir), config.WithLoggingPrefix("sesh"))
	path := filepath.Join(rootDir, "sesh.db")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no store at %s: %w", path, err)
	}
	key, err := crypto.DeriveStoreKey(password, rootDir, "store-salt")
	if err != nil {
		return nil, err
	}
	d, err := db.NewDatabase(c, path)
	if err != nil {
		return nil, err
	}
	if err := d.Open(key); err != nil {
		return nil, err
	}
	return d, nil
}

func formatMs(ms uint64) string {
	return time.UnixMilli(int64(ms)).Format(time.RFC3339)
}

func interactionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interactions",
		Short: "Print recent interactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() {
				_ = d.Shutdown()
			}()
			return d.RunReadOnly("list interactions", func() error {
				rows := make([]struct {
					ThreadID    string `db:"thread_id"`
					Sender      string `db:"sender"`
					Body        string `db:"body"`
					TimestampMs uint64 `db:"timestamp_ms"`
					Deleted     bool   `db:"deleted"`
				}, 0)
				if err := d.Tx.Select(&rows, `
SELECT thread_id, sender, body, timestamp_ms, deleted
FROM interactions ORDER BY timestamp_ms DESC LIMIT ?
`, limit); err != nil {
					return err
				}
				for _, r := range rows {
					body := r.Body
					if r.Deleted {
						body = "(deleted)"
					}
					fmt.Printf("%s  %s  %s: %s\n", formatMs(r.TimestampMs), r.ThreadID[:8], r.Sender[:8], body)
				}
				return nil
			})
		},
	}
}

func momentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "moments",
		Short: "Print recent moment posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() {
				_ = d.Shutdown()
			}()
			return d.RunReadOnly("list moments", func() error {
				rows := make([]struct {
					Author      string `db:"author"`
					TimestampMs uint64 `db:"timestamp_ms"`
					Caption     string `db:"caption"`
					ImageURL    string `db:"image_url"`
				}, 0)
				if err := d.Tx.Select(&rows, `
SELECT author, timestamp_ms, caption, image_url
FROM moment_posts ORDER BY timestamp_ms DESC LIMIT ?
`, limit); err != nil {
					return err
				}
				for _, r := range rows {
					fmt.Printf("%s  %s: %s %s\n", formatMs(r.TimestampMs), r.Author[:8], r.Caption, r.ImageURL)
				}
				return nil
			})
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:           "sesh",
		Short:         "Inspect a sesh message store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&rootDir, "root-dir", ".", "directory holding the store")
	root.PersistentFlags().StringVar(&password, "password", "", "store password")
	root.PersistentFlags().IntVar(&limit, "limit", 20, "max rows to print")
	root.AddCommand(interactionsCmd(), momentsCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
