package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kapipe/internal/daemon"
	"github.com/kapipe/internal/tui"
	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsTail   int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View replay logs",
	Long: `View the log of the current or last replay.

Examples:
  kapipe logs          Show recent logs
  kapipe logs -f       Follow logs in real-time
  kapipe logs -n 50    Show last 50 lines`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 20, "Number of lines to show")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	logPath := daemon.GetLogPath()

	// Check if log file exists
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println()
		fmt.Println(tui.WarningStyle.Render("  No logs found"))
		fmt.Println(tui.DimStyle.Render("  kapipe may not have been run yet"))
		fmt.Println()
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	fmt.Println()
	fmt.Println(tui.TitleStyle.Render(" kapipe logs "))
	fmt.Println(tui.DimStyle.Render(fmt.Sprintf(" %s", logPath)))
	fmt.Println(tui.Divider(50))
	fmt.Println()

	if logsFollow {
		return followLogs(file)
	}

	for _, line := range tailLines(file, logsTail) {
		fmt.Println(styleLogLine(line))
	}
	fmt.Println()
	return nil
}

// tailLines returns the last n lines of r.
func tailLines(r io.Reader, n int) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}

func followLogs(file *os.File) error {
	// Seek to end
	file.Seek(0, io.SeekEnd)

	reader := bufio.NewReader(file)

	fmt.Println(tui.DimStyle.Render("Waiting for new logs... (Ctrl+C to exit)"))
	fmt.Println()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}

		fmt.Println(styleLogLine(strings.TrimRight(line, "\n")))
	}
}

// styleLogLine colors a line written by the apex text handler by level.
func styleLogLine(line string) string {
	switch {
	case strings.Contains(line, "ERROR") || strings.Contains(line, "FATAL"):
		return tui.ErrorStyle.Render(line)
	case strings.Contains(line, "WARN"):
		return tui.WarningStyle.Render(line)
	case strings.Contains(line, "SUMMARY:") || strings.Contains(line, "restarting!"):
		return tui.SuccessStyle.Render(line)
	default:
		return tui.DimStyle.Render(line)
	}
}
