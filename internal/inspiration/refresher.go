package inspiration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/sparkle/internal/model"
)

// BlueprintSource はインスピレーションソースの取得元インターフェース。
type BlueprintSource interface {
	// GetBlueprint はブランド設計図を取得する。未作成の場合はmodel.ErrNotFoundを返す。
	GetBlueprint(ctx context.Context) (*model.BrandBlueprint, error)
}

// Refresher はインスピレーション記事のバックグラウンド更新を行う。
// 定期的にブランド設計図のソース一覧を取得し、semaphoreパターンで
// 最大並列数を制御しながら各ソースをフェッチする。
// 最新の収集結果はキャッシュされ、Articlesで参照できる。
type Refresher struct {
	blueprints     BlueprintSource
	service        *Service
	logger         *slog.Logger
	maxConcurrency int

	mu          sync.Mutex
	articles    []Article
	refreshedAt time.Time
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値3を使用する。
func NewRefresher(blueprints BlueprintSource, service *Service, logger *slog.Logger, maxConcurrency int) *Refresher {
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	return &Refresher{
		blueprints:     blueprints,
		service:        service,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Articles はキャッシュされた記事一覧のコピーを返す。
func (r *Refresher) Articles() []Article {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Article(nil), r.articles...)
}

// RefreshedAt は最後に更新が完了した時刻を返す。未更新の場合はゼロ値。
func (r *Refresher) RefreshedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshedAt
}

// Start は指定間隔のティッカーで更新を実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("インスピレーション更新を開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", r.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("インスピレーション更新に失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("インスピレーション更新を停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("インスピレーション更新に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce はソース一覧を1回取得し、並列で記事を収集してキャッシュを入れ替える。
// ブランド設計図が未作成の場合はキャッシュを空にして正常終了する。
func (r *Refresher) RunOnce(ctx context.Context) error {
	start := time.Now()

	bp, err := r.blueprints.GetBlueprint(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.replace(nil)
			return nil
		}
		return err
	}

	sources := bp.Inspirations
	if len(sources) == 0 {
		r.replace(nil)
		return nil
	}

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var collected []Article

	for _, source := range sources {
		wg.Add(1)
		sem <- struct{}{}

		go func(src string) {
			defer wg.Done()
			defer func() { <-sem }()

			articles, err := r.service.fetchSource(ctx, src)
			if err != nil {
				r.logger.Warn("インスピレーションソースの取得に失敗しました。スキップします",
					slog.String("source", src),
					slog.String("error", err.Error()),
				)
				return
			}

			mu.Lock()
			collected = append(collected, articles...)
			mu.Unlock()
		}(source)
	}

	wg.Wait()
	r.replace(collected)

	r.logger.Info("インスピレーション更新が完了しました",
		slog.Int("source_count", len(sources)),
		slog.Int("article_count", len(collected)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// replace はキャッシュを入れ替え、更新時刻を記録する。
func (r *Refresher) replace(articles []Article) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles = articles
	r.refreshedAt = time.Now()
}
