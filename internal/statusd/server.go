// Package statusd はローカル診断用のHTTPサーバーを提供する。
// ヘルスチェックとPrometheusメトリクスのエンドポイントを公開する。
package statusd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sparkle/internal/metrics"
)

// Pinger はローカル状態ストアの疎通確認インターフェース。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server は診断エンドポイントを公開するHTTPサーバー。
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer はServerの新しいインスタンスを生成する。
// GET /health   - ローカル状態ストアの疎通を含むヘルスチェック
// GET /metrics  - Prometheusスクレイプエンドポイント
func NewServer(port string, gatherer prometheus.Gatherer, store Pinger, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(requestLogger(logger))

	r.Get("/health", healthHandler(store))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	return &Server{
		httpServer: &http.Server{
			Addr:         "127.0.0.1:" + port,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start はサーバーを起動する。ListenAndServeをブロックして実行する。
func (s *Server) Start() error {
	s.logger.Info("診断サーバーを起動します", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown はサーバーをグレースフルに停止する。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler はヘルスチェックのハンドラーを返す。
// ローカル状態ストアへ疎通できない場合は503を返す。
func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// requestLogger はリクエストのJSON構造化ログを出力するミドルウェアを返す。
func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
			)
		})
	}
}
