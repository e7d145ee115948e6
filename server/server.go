// Package server 提供 HTTP 触发入口：回填任务入队、推荐查询、健康检查与指标。
//
// 回填接口只负责入队并立即返回 202，实际计算由 backfill.Runner 在后台完成。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/embedrec/backfill"
	"github.com/rushteam/embedrec/recommend"
)

// Submitter 接收后台回填任务，由 backfill.Runner 实现。
type Submitter interface {
	Submit(job backfill.Job) error
}

// Recommender 由 recommend.Ranker 实现。
type Recommender interface {
	Rank(ctx context.Context, userID int64, pageSize int) (*recommend.Result, error)
}

type Options struct {
	Backfill    Submitter
	Recommender Recommender

	// RequestTimeout 是单个推荐请求的超时，<= 0 使用 10s
	RequestTimeout time.Duration

	// TriggerRateLimit 是每个 IP 每分钟可调用回填接口的次数，<= 0 不限制
	TriggerRateLimit int

	// CORSOrigins 为空时不启用 CORS
	CORSOrigins []string

	Logger zerolog.Logger
}

type Server struct {
	backfill    Submitter
	recommender Recommender
	timeout     time.Duration
	rateLimit   int
	origins     []string
	logger      zerolog.Logger
}

func New(opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Server{
		backfill:    opts.Backfill,
		recommender: opts.Recommender,
		timeout:     opts.RequestTimeout,
		rateLimit:   opts.TriggerRateLimit,
		origins:     opts.CORSOrigins,
		logger:      opts.Logger,
	}
}

// Handler 返回挂好全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.accessLog)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/embedding", func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
		}
		r.Post("/update/{categoryId}", s.UpdateCategory)
		r.Post("/update-all-category", s.UpdateAllCategories)
		r.Post("/initialize/{startId}/{batchSize}", s.InitializeItems)
	})
	r.Get("/api/recommend/recommendations", s.Recommendations)
	return r
}

// Run 启动监听并阻塞到 ctx 取消，随后在 shutdownTimeout 内优雅退出。
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, &Response{Status: "ok"})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
