package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opsforge/foreman/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the committed coordination state",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openState(configFlag)
		if err != nil {
			return err
		}
		state, err := st.Read()
		if err != nil {
			return err
		}

		label := color.New(color.Faint)
		fmt.Printf("%s v%d, updated %s\n",
			color.New(color.Bold).Sprint("state"),
			state.Version,
			state.LastUpdated.Local().Format(time.RFC822))

		counts := make(map[models.TaskStatus]int)
		for _, t := range state.Tasks {
			counts[t.Status]++
		}
		fmt.Printf("%s %d total", label.Sprint("tasks:"), len(state.Tasks))
		for _, s := range []models.TaskStatus{
			models.TaskStatusPending,
			models.TaskStatusInProgress,
			models.TaskStatusBlocked,
			models.TaskStatusCompleted,
			models.TaskStatusCancelled,
		} {
			if counts[s] > 0 {
				fmt.Printf(", %d %s", counts[s], s)
			}
		}
		fmt.Println()

		if len(state.Agents) == 0 {
			fmt.Println(label.Sprint("agents:"), "none")
			return nil
		}

		ids := make([]string, 0, len(state.Agents))
		for id := range state.Agents {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Println(label.Sprint("agents:"))
		for _, id := range ids {
			a := state.Agents[id]
			age := time.Since(a.LastHeartbeat).Round(time.Second)
			line := fmt.Sprintf("  %-14s %-10s %-8s beat %s ago  done %d  failed %d",
				id, a.Role, a.State, age, a.Metrics.Completed, a.Metrics.Failed)
			switch a.State {
			case models.AgentStateError, models.AgentStateOffline:
				color.Yellow("%s", line)
			default:
				fmt.Println(line)
			}
		}
		return nil
	},
}
