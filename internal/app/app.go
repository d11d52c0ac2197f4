// Package app はアプリケーションの初期化と起動を行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sparkle/internal/api"
	"github.com/hitoshi/sparkle/internal/assist"
	"github.com/hitoshi/sparkle/internal/config"
	"github.com/hitoshi/sparkle/internal/inspiration"
	"github.com/hitoshi/sparkle/internal/localstore"
	"github.com/hitoshi/sparkle/internal/logger"
	"github.com/hitoshi/sparkle/internal/metrics"
	"github.com/hitoshi/sparkle/internal/onboarding"
	"github.com/hitoshi/sparkle/internal/platform"
	"github.com/hitoshi/sparkle/internal/post"
	"github.com/hitoshi/sparkle/internal/routing"
	"github.com/hitoshi/sparkle/internal/security"
	"github.com/hitoshi/sparkle/internal/session"
	"github.com/hitoshi/sparkle/internal/statusd"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SPARKLE_STATUS_PORT")
		if port == "" {
			port = "8090"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("state_db_path", cfg.StateDBPath),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runApp(cfg)
	}
}

// Services はアプリケーションの全コンポーネントを保持する。
// UI層はこの構造体を通じて各操作へアクセスする。
type Services struct {
	Config       *config.Config
	Store        *localstore.Store
	API          *api.Client
	Sessions     *session.Store
	Gate         *onboarding.Gate
	Orchestrator *routing.Orchestrator
	Posts        *post.Manager
	Picker       platform.ImagePicker
	Assist       *assist.Pipeline
	Inspiration  *inspiration.Service
	Refresher    *inspiration.Refresher
	Status       *statusd.Server
	Registry     *prometheus.Registry
}

// Close は保持しているリソースを解放する。
func (s *Services) Close() error {
	return s.Store.Close()
}

// AttachImageFromFile は端末上の画像ファイルを選択し、編集中の下書きへ添付する。
// 画像以外のファイルはネットワークを呼ばずに拒否される。
func (s *Services) AttachImageFromFile(ctx context.Context, path string) error {
	img, err := s.Picker.Pick(path)
	if err != nil {
		return err
	}
	defer img.Data.Close()

	return s.Posts.AttachImage(ctx, img.Filename, img.Data, img.LocalURI)
}

// buildServices は全依存関係をワイヤリングしServicesを構築する。
func buildServices(cfg *config.Config) (*Services, error) {
	// 1. ローカル状態DB
	store, err := localstore.Open(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if err := store.Ping(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}

	slog.Info("state database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. APIクライアント（画像アップロードは長めのタイムアウトを使う）
	apiClient := api.NewClient(
		&http.Client{Timeout: cfg.APITimeout},
		&http.Client{Timeout: cfg.UploadTimeout},
		cfg.APIBaseURL,
		store,
		slog.Default(),
		collector,
	)

	// 4. セキュリティサービス
	guard := security.NewGuard()
	sanitizer := security.NewArticleSanitizer()

	// 5. 端末機能
	clipboard := platform.NewOSC52Clipboard(nil)
	picker := platform.NewFileImagePicker()

	// 6. ドメインサービス
	sessions := session.NewStore(apiClient, store, slog.Default())
	gate := onboarding.NewGate(apiClient, store, slog.Default())
	orchestrator := routing.NewOrchestrator(sessions, gate, slog.Default())
	posts := post.NewManager(apiClient, clipboard, guard, slog.Default(), collector)
	pipeline := assist.NewPipeline(apiClient, cfg.AssistPerMinute, cfg.AssistBurst, slog.Default(), collector)
	articles := inspiration.NewService(
		guard, sanitizer, slog.Default(),
		cfg.InspirationTimeout, cfg.InspirationMaxSize, cfg.InspirationPerSource,
	)
	refresher := inspiration.NewRefresher(apiClient, articles, slog.Default(), cfg.InspirationMaxConcurrent)

	// 7. 診断サーバー
	status := statusd.NewServer(cfg.StatusPort, registry, store, slog.Default())

	return &Services{
		Config:       cfg,
		Store:        store,
		API:          apiClient,
		Sessions:     sessions,
		Gate:         gate,
		Orchestrator: orchestrator,
		Posts:        posts,
		Picker:       picker,
		Assist:       pipeline,
		Inspiration:  articles,
		Refresher:    refresher,
		Status:       status,
		Registry:     registry,
	}, nil
}

// runApp はクライアント本体を起動する。
// 未適用のマイグレーションを適用し、全依存関係をワイヤリングして、
// 起動時の認証チェックと診断サーバーを開始する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runApp(cfg *config.Config) error {
	if err := localstore.RunMigrations(cfg.StateDBPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	services, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	services.Orchestrator.SetContext(ctx)

	// 診断サーバーをバックグラウンドで起動
	go func() {
		if err := services.Status.Start(); err != nil {
			slog.Error("status server error", slog.String("error", err.Error()))
		}
	}()

	// インスピレーション記事のバックグラウンド更新を起動
	go services.Refresher.Start(ctx, cfg.InspirationRefreshInterval)

	// 起動時の認証チェック。完了するとオーケストレーターが初期画面を確定する。
	services.Sessions.CheckAuth(ctx)
	slog.Info("initial auth check completed",
		slog.String("status", string(services.Sessions.Status())),
		slog.String("view", string(services.Orchestrator.View())),
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := services.Status.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown failed: %w", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// runMigrate はローカル状態DBのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running state database migrations",
		slog.String("db_path", cfg.StateDBPath),
	)

	if err := localstore.RunMigrations(cfg.StateDBPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("state database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// 診断サーバーの /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
