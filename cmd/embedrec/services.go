package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/embedrec/backfill"
	"github.com/rushteam/embedrec/config"
	"github.com/rushteam/embedrec/server"
)

// httpService 让 server.Server 作为受监督的服务运行。
type httpService struct {
	srv *server.Server
	cfg config.ServerConfig
}

func (h *httpService) Serve(ctx context.Context) error {
	return h.srv.Run(ctx, h.cfg.Addr, h.cfg.ReadTimeout, h.cfg.WriteTimeout, h.cfg.ShutdownTimeout)
}

func (h *httpService) String() string { return "http-server" }

// backfillService 在监督树中启动回填执行器，ctx 取消时排空队列后退出。
// Runner 停止后不能再次启动，启动失败（例如 cron 表达式非法）会终止整棵树。
type backfillService struct {
	runner      *backfill.Runner
	stopTimeout time.Duration
}

func (b *backfillService) Serve(ctx context.Context) error {
	if err := b.runner.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", suture.ErrTerminateSupervisorTree, err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), b.stopTimeout)
	defer cancel()
	if err := b.runner.Stop(stopCtx); err != nil {
		return err
	}
	return ctx.Err()
}

func (b *backfillService) String() string { return "backfill-runner" }

func newSupervisor(logger zerolog.Logger, shutdownTimeout time.Duration) *suture.Supervisor {
	return suture.New("embedrec", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn().Fields(e.Map()).Msg(e.String())
		},
		Timeout: shutdownTimeout,
	})
}
