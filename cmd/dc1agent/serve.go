package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/dc1agent/pkg/alert"
	"github.com/cuemby/dc1agent/pkg/checkpoint"
	"github.com/cuemby/dc1agent/pkg/config"
	"github.com/cuemby/dc1agent/pkg/events"
	"github.com/cuemby/dc1agent/pkg/failover"
	"github.com/cuemby/dc1agent/pkg/health"
	"github.com/cuemby/dc1agent/pkg/heartbeat"
	"github.com/cuemby/dc1agent/pkg/log"
	"github.com/cuemby/dc1agent/pkg/mc"
	"github.com/cuemby/dc1agent/pkg/netmon"
	"github.com/cuemby/dc1agent/pkg/recovery"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent's long-lived services (heartbeat aggregator, network monitor)",
	RunE:  runServe,
}

var drillCmd = &cobra.Command{
	Use:   "drill [backup-gpu-id]",
	Short: "Run a synthetic failover drill against Mission Control without disturbing a real job",
	Args:  cobra.ExactArgs(1),
	RunE:  runDrill,
}

type agent struct {
	cfg config.Config

	broker     *events.Broker
	mcClient   *mc.Client
	store      *checkpoint.Store
	router     *alert.Router
	recovery   *recovery.Machine
	failover   *failover.Controller
	heartbeats *heartbeat.Aggregator
	netmon     *netmon.Monitor
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func buildAgent(cfg config.Config) (*agent, error) {
	broker := events.NewBroker()
	broker.Start()

	mcClient := mc.NewClient(cfg.MC.BaseURL, cfg.MC.AuthToken, time.Duration(cfg.MC.TimeoutSeconds)*time.Second)

	var remote checkpoint.Medium
	if cfg.Checkpoint.RemoteBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Checkpoint.S3Region))
		if err != nil {
			return nil, err
		}
		s3Client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.Checkpoint.S3Endpoint != "" {
				o.BaseEndpoint = &cfg.Checkpoint.S3Endpoint
			}
		})
		remote = checkpoint.NewS3Medium(s3Client, cfg.Checkpoint.RemoteBucket, cfg.Checkpoint.RemotePrefix)
	}

	store, err := checkpoint.NewStore(cfg.Checkpoint.LocalBasePath, remote, cfg.Checkpoint.KeepN)
	if err != nil {
		return nil, err
	}

	transports := map[string]alert.Transport{
		"chat_dm":    alert.NewChatDMTransport(cfg.Alert.SlackBotToken, cfg.Alert.SlackDMChannel),
		"chat_group": alert.NewChatGroupTransport(cfg.Alert.SlackBotToken, cfg.Alert.SlackGroupChannel),
		"mc":         alert.NewMCTransport(mcClient),
		"operator_mail": alert.NewOperatorMailTransport(cfg.Alert.OperatorMailTo, func(ctx context.Context, to, subject, body string) error {
			log.WithComponent("alert").Warn().Str("to", to).Str("subject", subject).Msg("operator mail delivery is not wired to a real mail transport in this deployment")
			return nil
		}),
	}
	router := alert.NewRouter(transports,
		time.Duration(cfg.Alert.RateLimitSeconds)*time.Second,
		time.Duration(cfg.Alert.BatchWindowSeconds)*time.Second,
	)

	recoveryMachine := recovery.NewMachine(broker)

	failoverCtrl := failover.NewController(mcClient, store, broker,
		time.Duration(cfg.Failover.BudgetMillis)*time.Millisecond,
		cfg.Failover.ConfirmPolls,
		time.Duration(cfg.Failover.ConfirmIntervalMillis)*time.Millisecond,
	)

	hbStore, err := heartbeat.OpenStore(cfg.Heartbeat.DBPath)
	if err != nil {
		return nil, err
	}
	hbAggregator := heartbeat.NewAggregator(hbStore, router, broker, time.Duration(cfg.Heartbeat.SilentCheckSeconds)*time.Second)

	netStore, err := netmon.OpenStore(cfg.Network.DBPath, cfg.Network.RetentionDays)
	if err != nil {
		return nil, err
	}
	monitor := netmon.NewMonitor(netStore, router, broker,
		cfg.Network.PrimaryTarget, cfg.Network.FallbackTarget,
		time.Duration(cfg.Network.IntervalSeconds)*time.Second,
		time.Duration(cfg.Network.PingTimeoutSeconds)*time.Second,
		time.Duration(cfg.Network.RollingWindowSeconds)*time.Second,
		time.Duration(cfg.Network.OutageConsecutiveSeconds)*time.Second,
		cfg.Network.LossAlertThresholdPct,
	)

	return &agent{
		cfg: cfg, broker: broker, mcClient: mcClient, store: store, router: router,
		recovery: recoveryMachine, failover: failoverCtrl, heartbeats: hbAggregator, netmon: monitor,
	}, nil
}

// runServe wires every component built from configuration and runs its
// long-lived loops under one errgroup supervisor, per spec.md §5: each
// loop owns the supervisor's shared, cancelable context, and a SIGTERM/
// SIGINT trips that context and drains the HTTP servers gracefully.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ag, err := buildAgent(cfg)
	if err != nil {
		return err
	}

	preflightMissionControl(cfg.MC.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	hbServer := &http.Server{Addr: cfg.Heartbeat.ListenAddr, Handler: heartbeat.NewServer(ag.heartbeats, cfg.Heartbeat.BearerToken)}
	netServer := &http.Server{Addr: cfg.Network.ListenAddr, Handler: netmon.NewServer(ag.netmon, cfg.Network.StatusRateLimitPerMin)}

	group.Go(func() error { return runLoop("heartbeat-silent-check", func() { ag.heartbeats.RunSilentCheckLoop(gctx) }) })
	group.Go(func() error { return runLoop("network-monitor", func() { ag.netmon.Run(gctx) }) })
	group.Go(func() error { return serveAndShutdown(gctx, hbServer, "heartbeat") })
	group.Go(func() error { return serveAndShutdown(gctx, netServer, "netmon") })

	log.WithComponent("serve").Info().Str("site_id", cfg.SiteID).Str("agent_id", cfg.AgentID).Msg("dc1agent started")

	return group.Wait()
}

// runLoop recovers a panic in a supervised loop rather than letting it
// take down the process, per spec.md §7's task-supervisor requirement.
func runLoop(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent(name).Error().Interface("panic", r).Msg("supervised loop panicked; not restarting this run")
		}
	}()
	fn()
	return nil
}

// preflightMissionControl checks Mission Control is reachable before the
// agent starts accepting heartbeats and serving network status, logging
// a warning rather than failing startup — MC being briefly unreachable
// is a transient condition the breakers in pkg/mc already handle.
func preflightMissionControl(baseURL string) {
	checker := health.NewHTTPChecker(baseURL + "/v1/healthz").WithTimeout(5 * time.Second)
	result := checker.Check(context.Background())
	if !result.Healthy {
		log.WithComponent("preflight").Warn().Str("message", result.Message).Msg("mission control preflight check failed; continuing startup")
		return
	}
	log.WithComponent("preflight").Info().Dur("latency", result.Duration).Msg("mission control reachable")
}

func serveAndShutdown(ctx context.Context, srv *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.WithComponent(name).Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runDrill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ag, err := buildAgent(cfg)
	if err != nil {
		return err
	}

	res := ag.failover.RunDrill(context.Background(), args[0])
	if !res.Success {
		log.WithComponent("drill").Error().Str("reason", res.Reason).Msg("failover drill failed")
		os.Exit(1)
	}
	log.WithComponent("drill").Info().Dur("elapsed", res.Duration).Msg("failover drill succeeded")
	return nil
}
