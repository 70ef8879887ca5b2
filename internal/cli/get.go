package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kapipe/internal/config"
	"github.com/kapipe/pkg/pipeline"
	"github.com/spf13/cobra"
)

var (
	getUser     string
	getPassword string
	getFailFast bool
	getTimeout  time.Duration
)

var getCmd = &cobra.Command{
	Use:   "get <url> <path>...",
	Short: "Fetch paths over one pipelined connection",
	Long: `Submit every path to the target at once and print the bodies in
submission order. All requests share a single HTTP/1.1 connection.

Example:
  kapipe get http://tracker:6969 /announce?info_hash=... /scrape`,
	Args: cobra.MinimumNArgs(2),
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVar(&getUser, "user", "", "Basic auth user")
	getCmd.Flags().StringVar(&getPassword, "password", "", "Basic auth password")
	getCmd.Flags().BoolVar(&getFailFast, "fail-fast", false, "Fail queued paths instead of retrying when the target is down")
	getCmd.Flags().DurationVar(&getTimeout, "timeout", pipeline.DefaultConnectTimeout, "Connect timeout")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	cfg.Target.URL = args[0]
	cfg.Target.User = getUser
	cfg.Target.Password = getPassword
	cfg.Target.RetryForever = !getFailFast
	cfg.Target.ConnectTimeout = getTimeout

	endpoint, err := newEndpoint(cfg.Target, nil)
	if err != nil {
		return err
	}
	defer endpoint.Close()

	return fetchAll(cmd.Context(), endpoint, args[1:], os.Stdout)
}

// fetchAll submits paths back to back and writes each body as it settles.
func fetchAll(ctx context.Context, endpoint *pipeline.Endpoint, paths []string, w io.Writer) error {
	queries := make([]*pipeline.Query, len(paths))
	for i, p := range paths {
		queries[i] = endpoint.Submit(p)
	}

	var failed int
	for _, q := range queries {
		body, err := q.Wait(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", q.Path, err)
			failed++
			continue
		}
		w.Write(body)
		fmt.Fprintln(w)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(queries))
	}
	return nil
}
