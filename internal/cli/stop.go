package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kapipe/internal/daemon"
	"github.com/kapipe/internal/tui"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running replay",
	Long: `Stop the running replay gracefully.
Queries already sent are answered before the process exits.`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := daemon.GetPidPath()
	logPath := daemon.GetLogPath()

	if _, err := daemon.SendCommand(daemon.Command{Type: "stop"}); err != nil {
		// No control socket; fall back to the pid file.
		if !signalPid(pidPath) {
			fmt.Println()
			fmt.Println(tui.WarningStyle.Render("  kapipe is not running"))
			fmt.Println()
			return nil
		}
	}

	fmt.Println()
	fmt.Println(tui.DimStyle.Render("  Stopping kapipe..."))

	// Wait for process to exit (max 5 seconds)
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, err := os.Stat(pidPath); os.IsNotExist(err) {
			break
		}
	}

	fmt.Println(tui.SuccessStyle.Render("  " + tui.CheckMark + " kapipe stopped"))
	fmt.Println()

	// Show last summary from log
	if summary := lastSummary(logPath); summary != "" {
		printSummary(os.Stdout, summary)
	}

	return nil
}

// signalPid sends SIGTERM to the process in the pid file.
func signalPid(pidPath string) bool {
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		fmt.Println(tui.ErrorStyle.Render("  Invalid PID file"))
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidPath)
		return false
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		// Process already finished, clean up PID file
		os.Remove(pidPath)
		return false
	}
	return true
}

// lastSummary returns the last SUMMARY line of the log file
func lastSummary(logPath string) string {
	file, err := os.Open(logPath)
	if err != nil {
		return ""
	}
	defer file.Close()

	var last string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "SUMMARY:") {
			last = line
		}
	}
	return last
}
