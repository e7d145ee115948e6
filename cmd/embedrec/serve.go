package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/embedrec/pkg/logging"
	"github.com/rushteam/embedrec/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务（回填触发、推荐查询、/metrics）",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ranker, err := a.ranker()
	if err != nil {
		return err
	}

	sc := a.cfg.Server
	opts := server.Options{
		Recommender:      ranker,
		TriggerRateLimit: sc.TriggerRateLimit,
		CORSOrigins:      sc.CORSOrigins,
		Logger:           logging.Component("server"),
	}
	sup := newSupervisor(logging.Component("supervisor"), sc.ShutdownTimeout)

	// 未配置向量 API 时只提供推荐查询，回填接口返回 503
	runner, err := a.runner(nil)
	if err != nil {
		a.logger.Warn().Err(err).Msg("backfill disabled")
	} else {
		opts.Backfill = runner
		sup.Add(&backfillService{runner: runner, stopTimeout: sc.ShutdownTimeout})
	}
	sup.Add(&httpService{srv: server.New(opts), cfg: sc})

	err = sup.Serve(ctx)
	if ctx.Err() != nil && !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		// 收到信号后的正常退出
		return nil
	}
	return err
}
