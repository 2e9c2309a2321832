package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/riomux/chancore/admin"
	"github.com/riomux/chancore/chancore"
	"github.com/riomux/chancore/config"
	"github.com/riomux/chancore/internal/crlog"
	"github.com/riomux/chancore/metrics"
	"github.com/riomux/chancore/transport/faketransport"
)

var (
	runAddr     string
	runPort     uint
	runDestID   uint
	runMetrics  bool
)

// RunCmd boots the core engine. Without a real RapidIO mailbox driver
// wired in (spec.md §1 treats it as an external collaborator), this
// command runs against faketransport's in-memory loopback fabric,
// useful for smoke-testing channel_create/bind/listen/connect against a
// single local node.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the chancore engine with the admin introspection surface",
	RunE:  runEngine,
}

func init() {
	RunCmd.Flags().StringVar(&runAddr, "admin-addr", "127.0.0.1:26680", "admin HTTP/WS listen address")
	RunCmd.Flags().UintVar(&runPort, "port", 0, "local port number to bring up")
	RunCmd.Flags().UintVar(&runDestID, "destid", 1, "local port's host destination ID")
	RunCmd.Flags().BoolVar(&runMetrics, "metrics", true, "expose prometheus metrics on the admin surface")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log := crlog.NewLogger()

	var mtrc *metrics.Metrics
	if runMetrics {
		mtrc = metrics.PrometheusMetrics()
	} else {
		mtrc = metrics.NopMetrics()
	}

	net := faketransport.NewNetwork()
	mb := net.Register(uint32(runDestID))

	engine := chancore.NewEngine(cfg, mb, log, mtrc)
	if err := engine.AddPort(uint32(runPort), uint32(runDestID)); err != nil {
		return err
	}
	log.Info("port up", "port", runPort, "destid", runDestID)

	srv := admin.NewServer(runAddr, engine, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error("admin surface stopped", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	engine.Shutdown()
	return nil
}
