package cli

import (
	"fmt"
	"os"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"

	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kapipe",
	Short: "Pipelined HTTP/1.1 tracker load generator",
	Long: `kapipe sends queries to a tracker over a single pipelined HTTP/1.1
connection, reconnecting and resending unanswered queries when the
connection drops.

Get started:
  kapipe run         Replay a tracker request log against a target
  kapipe get         Fetch paths over one pipelined connection`,
	Version: fmt.Sprintf("%s (built %s)", version, buildTime),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetHandler(logcli.Default)
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
		log.Debugf("kapipe version %s (commit %s)", version, gitCommit)
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// SetVersion sets the version info
func SetVersion(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

// SetGitCommit sets the commit the binary was built from
func SetGitCommit(c string) {
	gitCommit = c
}
