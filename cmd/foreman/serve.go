package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opsforge/foreman/internal/config"
	"github.com/opsforge/foreman/internal/coordinator"
	"github.com/opsforge/foreman/internal/memory"
	"github.com/opsforge/foreman/internal/proc"
	"github.com/opsforge/foreman/internal/tui"
	"github.com/opsforge/foreman/internal/workspace"
)

var (
	serveRolesPath string
	serveDashboard bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator",
	Long: `Start the coordinator: open the state store, launch the declared worker
processes, and supervise their health until interrupted.

With --dashboard, a live terminal view of tasks and agents is shown; quitting
the dashboard shuts the coordinator down.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRolesPath, "roles", "", "roles file (defaults to workers.roles_file)")
	serveCmd.Flags().BoolVar(&serveDashboard, "dashboard", false, "show the live dashboard")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return err
	}

	rolesPath := serveRolesPath
	if rolesPath == "" {
		rolesPath = cfg.Workers.RolesFile
	}
	roles, err := config.LoadRoles(rolesPath)
	if err != nil {
		return err
	}

	opts := coordinator.Options{
		Logger: coordinator.NewDebugLoggerForDir(stateDir(cfg)),
	}

	if cfg.Workers.Command != "" {
		lifecycle := proc.NewExecLifecycle(
			cfg.Workers.Command, cfg.Workers.Args, "", roles.WorkerRoles())
		lifecycle.SetLogf(opts.Logger.Log)
		opts.Lifecycle = lifecycle
		opts.Workspaces = workspace.NewGitManager(".", cfg.Workers.WorkspaceRoot, "")
	}

	mem, err := memory.NewSQLiteStore(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("open semantic memory: %w", err)
	}
	defer mem.Close()
	opts.Memory = mem

	c, err := coordinator.New(cfg, roles, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		return err
	}
	defer c.Stop()

	color.New(color.FgGreen).Fprintf(os.Stderr, "foreman serving: state %s, %d workers\n",
		cfg.State.Path, len(roles.Workers))

	if serveDashboard {
		var healthv tui.HealthView
		if sup := c.Supervisor(); sup != nil {
			healthv = sup
		}
		dash := tui.NewDashboard(c.Store(), healthv)
		p := tea.NewProgram(dash, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "shutting down")
	return nil
}
