package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opsforge/foreman/internal/config"
	"github.com/opsforge/foreman/internal/registry"
	"github.com/opsforge/foreman/internal/store"
	"github.com/opsforge/foreman/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and inspect tasks",
}

var (
	taskCreatePriority int
	taskCreateTags     []string
	taskCreateRole     string
	taskCreateDeps     []string
	taskCreateDesc     string

	taskListAll    bool
	taskListStatus string
	taskListTag    string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Add a task to the backlog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, reg, err := openState(configFlag)
		if err != nil {
			return err
		}

		task, err := reg.Create(args[0], taskCreateDesc, taskCreateTags, "cli", registry.CreateOptions{
			Priority:     taskCreatePriority,
			Role:         taskCreateRole,
			Dependencies: taskCreateDeps,
		})
		if err != nil {
			return err
		}
		if err := st.Flush(); err != nil {
			return err
		}

		color.Green("created task %s", task.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in claim order",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, reg, err := openState(configFlag)
		if err != nil {
			return err
		}

		filter := registry.Filter{IncludeCompleted: taskListAll}
		if taskListStatus != "" {
			filter.Statuses = []models.TaskStatus{models.TaskStatus(taskListStatus)}
		}
		if taskListTag != "" {
			filter.Tags = []string{taskListTag}
		}

		tasks := reg.Query(filter)
		if len(tasks) == 0 {
			fmt.Println("no tasks")
			return nil
		}
		for _, t := range tasks {
			printTaskLine(t)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, reg, err := openState(configFlag)
		if err != nil {
			return err
		}

		task, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		printTask(task)
		return nil
	},
}

func init() {
	taskCreateCmd.Flags().IntVarP(&taskCreatePriority, "priority", "p", 0, "priority 1-5 (default 3)")
	taskCreateCmd.Flags().StringSliceVarP(&taskCreateTags, "tag", "t", nil, "task tags (repeatable)")
	taskCreateCmd.Flags().StringVar(&taskCreateRole, "role", "", "role hint")
	taskCreateCmd.Flags().StringSliceVar(&taskCreateDeps, "depends-on", nil, "task ids that must complete first")
	taskCreateCmd.Flags().StringVarP(&taskCreateDesc, "description", "d", "", "task description")

	taskListCmd.Flags().BoolVarP(&taskListAll, "all", "a", false, "include completed tasks")
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "filter by status")
	taskListCmd.Flags().StringVar(&taskListTag, "tag", "", "filter by tag")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
}

// loadConfig loads either the named config file or the discovered one.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// stateDir returns the directory holding the durable document.
func stateDir(cfg *config.Config) string {
	return filepath.Dir(cfg.State.Path)
}

// openState opens the state store and a registry restored from the committed
// snapshot, for one-shot CLI operations. Callers that mutate must Flush before
// exiting.
func openState(configPath string) (*store.Store, *registry.Registry, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.State.Path,
		store.WithMaxFlushFailures(cfg.State.MaxFlushFailures))
	if err != nil {
		return nil, nil, err
	}

	snapshot, err := st.Read()
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(st)
	reg.Restore(snapshot)
	return st, reg, nil
}

// statusColor returns the display color for a task status.
func statusColor(status models.TaskStatus) *color.Color {
	switch status {
	case models.TaskStatusCompleted:
		return color.New(color.FgGreen)
	case models.TaskStatusInProgress:
		return color.New(color.FgCyan)
	case models.TaskStatusBlocked:
		return color.New(color.FgYellow)
	case models.TaskStatusCancelled:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgWhite)
	}
}

// printTaskLine prints the one-line list form of a task.
func printTaskLine(t *models.Task) {
	id := t.ID
	if len(id) > 8 {
		id = id[:8]
	}
	assigned := t.AssignedTo
	if assigned == "" {
		assigned = "-"
	} else if len(assigned) > 8 {
		assigned = assigned[:8]
	}
	fmt.Printf("%s  P%d  %s  %-36s  %s\n",
		id, t.Priority,
		statusColor(t.Status).Sprintf("%-12s", t.Status),
		t.Title, assigned)
}

// printTask prints the detail form of a task.
func printTask(t *models.Task) {
	label := color.New(color.Faint)
	fmt.Printf("%s %s\n", label.Sprint("id:"), t.ID)
	fmt.Printf("%s %s\n", label.Sprint("title:"), t.Title)
	if t.Description != "" {
		fmt.Printf("%s %s\n", label.Sprint("description:"), t.Description)
	}
	fmt.Printf("%s %s\n", label.Sprint("status:"), statusColor(t.Status).Sprint(t.Status))
	fmt.Printf("%s %d\n", label.Sprint("priority:"), t.Priority)
	if len(t.Tags) > 0 {
		fmt.Printf("%s %s\n", label.Sprint("tags:"), strings.Join(t.Tags, ", "))
	}
	if t.Role != "" {
		fmt.Printf("%s %s\n", label.Sprint("role:"), t.Role)
	}
	if t.AssignedTo != "" {
		fmt.Printf("%s %s\n", label.Sprint("assigned:"), t.AssignedTo)
	}
	if len(t.Dependencies) > 0 {
		fmt.Printf("%s %s\n", label.Sprint("depends on:"), strings.Join(t.Dependencies, ", "))
	}
	if t.BlockedBy != "" {
		fmt.Printf("%s %s\n", label.Sprint("blocked by:"), t.BlockedBy)
	}
	fmt.Printf("%s %s\n", label.Sprint("created:"), t.CreatedAt.Local().Format(time.RFC822))
	if t.CompletedAt != nil {
		fmt.Printf("%s %s\n", label.Sprint("completed:"), t.CompletedAt.Local().Format(time.RFC822))
	}
	if t.Results != nil && t.Results.Notes != "" {
		fmt.Printf("%s %s\n", label.Sprint("notes:"), t.Results.Notes)
	}
}
