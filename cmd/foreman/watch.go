package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/opsforge/foreman/pkg/models"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow version transitions of the coordination state",
	Long: `Watch the durable state document and print a line for every committed
version. Useful for following a running coordinator from another terminal.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	statePath, err := filepath.Abs(cfg.State.Path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// The store replaces the document via rename, so watch the directory
	// rather than the (repeatedly recreated) file.
	if err := watcher.Add(filepath.Dir(statePath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(statePath), err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lastVersion int64 = -1
	if state, err := readStateFile(statePath); err == nil {
		printVersion(state)
		lastVersion = state.Version
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != statePath {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			state, err := readStateFile(statePath)
			if err != nil {
				// The rename pair can fire mid-replace; the next event will
				// see a whole file.
				continue
			}
			if state.Version == lastVersion {
				continue
			}
			printVersion(state)
			lastVersion = state.Version
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

// readStateFile decodes the durable document directly from disk.
func readStateFile(path string) (*models.CoordinationState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	state := models.NewCoordinationState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}

// printVersion prints the one-line summary of a committed version.
func printVersion(state *models.CoordinationState) {
	counts := make(map[models.TaskStatus]int)
	for _, t := range state.Tasks {
		counts[t.Status]++
	}
	fmt.Printf("%s  %s  %d tasks (%d pending, %d in progress, %d blocked, %d done)  %d agents\n",
		time.Now().Format("15:04:05"),
		color.New(color.FgCyan).Sprintf("v%d", state.Version),
		len(state.Tasks),
		counts[models.TaskStatusPending],
		counts[models.TaskStatusInProgress],
		counts[models.TaskStatusBlocked],
		counts[models.TaskStatusCompleted],
		len(state.Agents))
}
