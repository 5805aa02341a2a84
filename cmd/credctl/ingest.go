package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"credledger/internal/config"
)

// Inbox subdirectories.
const (
	doneDir   = "done"
	failedDir = "failed"
)

// inbox issues certificates from request files dropped into a directory.
// Processed files move to done/, rejected ones to failed/ next to a
// .err file holding the reason.
type inbox struct {
	dir    string
	caller string
	app    *app
	logger *slog.Logger
}

func newIngestCmd(opts *options) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Issue certificates from issue-request files in an inbox directory",
		Long:  "Issue every *.json request in the inbox (default: ingest.dir).\nWith --watch, keep running and issue requests as they arrive; the authorized\nissuer list is reloaded when the config file changes.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCaller(opts); err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			dir := a.cfg.Ingest.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			in := &inbox{
				dir:    dir,
				caller: opts.caller,
				app:    a,
				logger: a.logger.WithComponent("ingest").Logger,
			}
			if err := in.prepare(); err != nil {
				return err
			}

			ok, failed := in.processAll(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d request(s): %d issued, %d failed\n", ok+failed, ok, failed)

			if !watch {
				return nil
			}
			return in.watch(cmd.Context(), opts.configPath)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep watching the inbox")
	return cmd
}

func (in *inbox) prepare() error {
	for _, sub := range []string{"", doneDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(in.dir, sub), 0700); err != nil {
			return fmt.Errorf("create inbox: %w", err)
		}
	}
	return nil
}

func isRequestFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(filepath.Base(name), ".")
}

// processAll handles every pending request in name order.
func (in *inbox) processAll(ctx context.Context) (ok, failed int) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.ErrorContext(ctx, "read inbox failed", "dir", in.dir, "error", err)
		return 0, 0
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isRequestFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		switch err := in.processFile(ctx, filepath.Join(in.dir, name)); {
		case err == nil:
			ok++
		case errors.Is(err, os.ErrNotExist):
		default:
			failed++
		}
	}
	return ok, failed
}

// processFile issues one request and files it under done/ or failed/.
func (in *inbox) processFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	cert, err := decodeRequest(data)
	if err == nil {
		_, err = in.app.issue(ctx, in.caller, cert)
	}

	if err != nil {
		in.logger.WarnContext(ctx, "request rejected", "file", name, "error", err)
		dst := filepath.Join(in.dir, failedDir, name)
		if mvErr := os.Rename(path, dst); mvErr != nil {
			return errors.Join(err, mvErr)
		}
		os.WriteFile(dst+".err", []byte(err.Error()+"\n"), 0600)
		return err
	}

	in.logger.InfoContext(ctx, "request issued", "file", name, "certificate_id", cert.ID)
	return os.Rename(path, filepath.Join(in.dir, doneDir, name))
}

// watch issues requests as they settle and refreshes the issuer list on
// config changes until ctx is canceled.
func (in *inbox) watch(ctx context.Context, configPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}

	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	if configPath != "" {
		loader := config.NewLoader(configPath)
		if _, err := loader.Load(); err != nil {
			return err
		}
		loader.OnChange(in.reloadIssuers)
		if err := loader.Watch(); err != nil {
			return err
		}
		defer loader.Close()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case err := <-loader.Errors():
					in.logger.ErrorContext(ctx, "config reload failed", "error", err)
				}
			}
		}()
	}

	debounce := time.Duration(in.app.cfg.Ingest.DebounceMs) * time.Millisecond
	ready := make(chan string, 16)
	timers := make(map[string]*time.Timer)

	in.logger.InfoContext(ctx, "watching inbox", "dir", in.dir, "debounce", debounce)

	for {
		select {
		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isRequestFile(event.Name) {
				continue
			}
			path := event.Name
			if t, exists := timers[path]; exists {
				t.Stop()
			}
			timers[path] = time.AfterFunc(debounce, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(timers, path)
			// Rejections are logged and filed by processFile.
			_ = in.processFile(ctx, path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.ErrorContext(ctx, "inbox watcher error", "error", err)
		}
	}
}

func (in *inbox) reloadIssuers(cfg *config.Config) {
	before := in.app.issuers.Len()
	in.app.issuers.Update(cfg.Issuers.Authorized)

	ctx := context.Background()
	in.logger.InfoContext(ctx, "authorized issuers reloaded", "count", len(cfg.Issuers.Authorized))
	in.app.audit.LogConfigChange(ctx, "issuers.authorized", before, in.app.issuers.Len())
}
