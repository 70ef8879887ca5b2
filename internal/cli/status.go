package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/kapipe/internal/config"
	"github.com/kapipe/internal/daemon"
	"github.com/kapipe/internal/health"
	"github.com/kapipe/internal/replay"
	"github.com/kapipe/internal/tui"
	"github.com/spf13/cobra"
)

var (
	statusJSON  bool
	statusWatch bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running replay",
	Long: `Display the current status of a running kapipe replay.

Examples:
  kapipe status          Show current status
  kapipe status -w       Watch status (refresh every second)
  kapipe status --json   Output as JSON`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Watch mode (refresh every second)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
}

// replayStatus collects the status served over the control socket.
func replayStatus(cfg *config.Config, endpoints endpointSet, runner *replay.Runner, checker *health.Checker) daemon.Status {
	stats := runner.Stats()
	return daemon.Status{
		Healthy:   checker.Healthy(),
		TargetURL: cfg.Target.URL,
		Policy:    string(cfg.Target.Policy()),
		Workers:   cfg.Replay.Workers,
		Conns:     len(endpoints),
		Passes:    runner.Passes(),
		Requests:  stats.Requests(),
		Errors:    stats.Errors(),
		Pending:   endpoints.Pending(),
		InFlight:  endpoints.InFlight(),
		P50:       float64(stats.Percentile(50)) / float64(time.Millisecond),
		P99:       float64(stats.Percentile(99)) / float64(time.Millisecond),
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusWatch {
		return watchStatus()
	}

	return showStatus()
}

func showStatus() error {
	resp, err := daemon.SendCommand(daemon.Command{Type: "status"})
	if err != nil {
		fmt.Println()
		fmt.Println(tui.ErrorStyle.Render("  " + tui.CrossMark + " kapipe is not running"))
		fmt.Println()
		fmt.Println(tui.DimStyle.Render("  Start with: kapipe run"))
		fmt.Println()
		return nil
	}

	if statusJSON {
		output, _ := json.MarshalIndent(resp.Data, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	status, err := daemon.DecodeStatus(resp)
	if err != nil {
		return err
	}
	fmt.Println(renderStatus(status))
	return nil
}

func watchStatus() error {
	// Clear screen
	fmt.Print("\033[H\033[2J")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		// Move cursor to top
		fmt.Print("\033[H")

		resp, err := daemon.SendCommand(daemon.Command{Type: "status"})
		if err != nil {
			fmt.Println(tui.ErrorStyle.Render("Connection lost. The replay may have stopped."))
			return nil
		}

		status, err := daemon.DecodeStatus(resp)
		if err != nil {
			return err
		}
		fmt.Println(renderStatus(status))
		fmt.Println()
		fmt.Println(tui.DimStyle.Render("Press Ctrl+C to exit watch mode"))

		<-ticker.C
	}
}

func renderStatus(status daemon.Status) string {
	var out strings.Builder
	out.WriteString("\n")

	// Header
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		tui.TitleStyle.Render(" kapipe "),
		"  ",
		tui.SubtitleStyle.Render("STATUS"),
	)
	out.WriteString(header + "\n\n")

	// Status indicator
	var statusText string
	switch {
	case !status.Running:
		statusText = tui.ErrorStyle.Render(tui.CrossMark + " STOPPED")
	case status.Paused:
		statusText = tui.WarningStyle.Render("PAUSED")
	case !status.Healthy:
		statusText = tui.WarningStyle.Render("WAITING (target unhealthy)")
	default:
		statusText = tui.SuccessStyle.Render(tui.CheckMark + " REPLAYING")
	}
	out.WriteString("  " + statusText + "\n\n")

	var content strings.Builder

	content.WriteString(tui.SubtitleStyle.Render("Queries"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  Requests:  %s\n", tui.ValueStyle.Render(fmt.Sprintf("%d", status.Requests))))
	content.WriteString(fmt.Sprintf("  Errors:    %s\n", tui.ErrorStyle.Render(fmt.Sprintf("%d", status.Errors))))
	content.WriteString(fmt.Sprintf("  Latency:   %s\n", tui.ValueStyle.Render(fmt.Sprintf("p50 %.1fms  p99 %.1fms", status.P50, status.P99))))
	content.WriteString(fmt.Sprintf("  Pass:      %s\n", tui.ValueStyle.Render(fmt.Sprintf("%d", status.Passes))))
	content.WriteString("\n")

	content.WriteString(tui.SubtitleStyle.Render("Pipeline"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  Pending:   %s\n", tui.ValueStyle.Render(fmt.Sprintf("%d", status.Pending))))
	content.WriteString(fmt.Sprintf("  In flight: %s\n", tui.ValueStyle.Render(fmt.Sprintf("%d", status.InFlight))))
	content.WriteString(fmt.Sprintf("  Workers:   %s\n", tui.ValueStyle.Render(fmt.Sprintf("%d", status.Workers))))
	content.WriteString(fmt.Sprintf("  Conns:     %s\n", tui.ValueStyle.Render(fmt.Sprintf("%d", status.Conns))))
	content.WriteString("\n")

	content.WriteString(tui.SubtitleStyle.Render("Target"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  %s %s\n", tui.LabelStyle.Render(status.Policy), tui.DimStyle.Render(status.TargetURL)))
	content.WriteString("\n")

	content.WriteString(tui.SubtitleStyle.Render("Uptime"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  %s", tui.ValueStyle.Render(status.Uptime)))

	out.WriteString(tui.BorderStyle.Width(50).Render(content.String()))
	return out.String()
}

// Pause command
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause a running replay",
	Long:  `Stop handing out log entries without closing the connection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := daemon.SendCommand(daemon.Command{Type: "pause"})
		if err != nil {
			return err
		}

		if resp.Success {
			fmt.Println()
			fmt.Println(tui.WarningStyle.Render("  " + resp.Message))
			fmt.Println()
		}

		return nil
	},
}

// Resume command
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused replay",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := daemon.SendCommand(daemon.Command{Type: "resume"})
		if err != nil {
			return err
		}

		if resp.Success {
			fmt.Println()
			fmt.Println(tui.SuccessStyle.Render("  " + tui.CheckMark + " " + resp.Message))
			fmt.Println()
		}

		return nil
	},
}
