package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/multi"
	"github.com/apex/log/handlers/text"
	"github.com/kapipe/internal/config"
	"github.com/kapipe/internal/daemon"
	"github.com/kapipe/internal/health"
	"github.com/kapipe/internal/peer"
	"github.com/kapipe/internal/replay"
	"github.com/kapipe/internal/tui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath string
	targetURL  string
	requestLog string
	workers    int
	conns      int
	queryRate  float64
	once       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a tracker request log against a target",
	Long: `Replay the REQUEST lines of a tracker log against a target tracker.
Workers take turns on --connections pipelined connections. Announces
are rewritten to point at a local fake peer that answers handshakes.

Example:
  kapipe run --config kapipe.yaml
  kapipe run --url http://tracker:6969 --log requests.log --workers 50 --once`,
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVarP(&targetURL, "url", "u", "", "Target tracker URL (overrides config)")
	cmd.Flags().StringVarP(&requestLog, "log", "l", "", "Request log to replay (overrides config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Number of workers (overrides config)")
	cmd.Flags().IntVarP(&conns, "connections", "n", 0, "Number of pipelined connections (overrides config)")
	cmd.Flags().Float64VarP(&queryRate, "rate", "r", 0, "Queries per second, 0 for unlimited (overrides config)")
	cmd.Flags().BoolVar(&once, "once", false, "Stop after one pass over the log")
}

func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Target.URL = targetURL
	}
	if flags.Changed("log") {
		cfg.Replay.Log = requestLog
	}
	if flags.Changed("workers") {
		cfg.Replay.Workers = workers
	}
	if flags.Changed("connections") {
		cfg.Replay.Connections = conns
	}
	if flags.Changed("rate") {
		cfg.Replay.Rate = queryRate
	}
	if once {
		cfg.Replay.Loop = false
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	// Check if already running
	if daemon.IsRunning() {
		fmt.Println()
		fmt.Println(tui.WarningStyle.Render("  kapipe is already running!"))
		fmt.Println(tui.DimStyle.Render("  Use 'kapipe status' to check status"))
		fmt.Println(tui.DimStyle.Render("  Use 'kapipe stop' to stop the running replay"))
		fmt.Println()
		return nil
	}

	entries, err := replay.LoadLog(cfg.Replay.Log)
	if err != nil {
		return err
	}

	fmt.Println(tui.TitleStyle.Render(" kapipe "))
	fmt.Printf("  %s %s\n", tui.LabelStyle.Render("Target: "), tui.ValueStyle.Render(cfg.Target.URL))
	fmt.Printf("  %s %s\n", tui.LabelStyle.Render("Log:    "), tui.ValueStyle.Render(fmt.Sprintf("%s (%d requests)", cfg.Replay.Log, len(entries))))
	fmt.Printf("  %s %s\n", tui.LabelStyle.Render("Workers:"), tui.ValueStyle.Render(fmt.Sprintf("%d over %d connections", cfg.Replay.Workers, cfg.Replay.Connections)))
	if cfg.Replay.Loop {
		fmt.Println(tui.DimStyle.Render("  Looping over the log, Ctrl+C to stop"))
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := health.NewMetrics(reg)

	endpoints, err := newEndpoints(cfg.Target, cfg.Replay.Connections, metrics)
	if err != nil {
		return err
	}
	defer endpoints.Close()

	if cfg.Peer.Enabled {
		p := peer.NewServer(cfg.Peer.Address)
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("failed to start fake peer: %w", err)
		}
		defer p.Stop()
	}

	checker := health.NewChecker(cfg.Health, endpoints[0], metrics)
	checker.Start(ctx)
	defer checker.Stop()

	if cfg.Metrics.Enabled {
		srv := health.NewServer(cfg.Metrics, reg, checker.Healthy)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("[metrics] server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	runner := replay.NewRunner(cfg.Replay, entries, replay.NewPool(endpoints.Clients()...), metrics)
	if cfg.Health.Enabled {
		runner.SetGate(checker)
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		runner.SetProgress(os.Stdout)
	}

	ctrl := daemon.New(daemon.Controls{
		Status: func() daemon.Status {
			return replayStatus(cfg, endpoints, runner, checker)
		},
		Pause: runner.SetPaused,
		Stop:  runner.Stop,
	})
	if err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Stop()
	log.SetHandler(multi.New(logcli.Default, text.New(ctrl.LogFile())))
	defer log.SetHandler(logcli.Default)
	log.Infof("[run] replaying %d requests against %s", len(entries), cfg.Target.URL)

	err = runner.Run(ctx)
	fmt.Println()
	switch {
	case err != nil:
		fmt.Println(tui.ErrorStyle.Render("  " + tui.CrossMark + " " + err.Error()))
	case ctx.Err() != nil:
		fmt.Println(tui.WarningStyle.Render("  Shutting down..."))
	default:
		fmt.Println(tui.SuccessStyle.Render("  " + tui.CheckMark + " Replay finished"))
	}
	fmt.Println(tui.Divider(50))

	summary := runner.Stats().Summary()
	log.Info(summary)
	printSummary(os.Stdout, summary)
	return err
}
