// Package assist はAIアシスト呼び出しのレート制御と入力検証を提供する。
package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hitoshi/sparkle/internal/metrics"
	"github.com/hitoshi/sparkle/internal/model"
)

// Action はAIアシストの動作種別を表す。
type Action string

const (
	// ActionContinue は本文の続きを生成する。
	ActionContinue Action = "continue"
	// ActionRephrase は本文を言い換える。
	ActionRephrase Action = "rephrase"
	// ActionGrammar は文法を修正する。
	ActionGrammar Action = "grammar"
	// ActionEngagement はエンゲージメントを高める表現へ書き換える。
	ActionEngagement Action = "engagement"
	// ActionShorter は本文を短くする。
	ActionShorter Action = "shorter"
)

// String はワイヤーフォーマット上の動作識別子を返す。
func (a Action) String() string {
	return string(a)
}

// Valid は既知の動作種別かを判定する。
func (a Action) Valid() bool {
	switch a {
	case ActionContinue, ActionRephrase, ActionGrammar, ActionEngagement, ActionShorter:
		return true
	}
	return false
}

// AssistAPI はAIアシストエンドポイントのインターフェース。
type AssistAPI interface {
	Assist(ctx context.Context, action, text string) (*model.AIAssistResult, error)
}

// Pipeline はAIアシスト呼び出しの前段に入力検証とレート制御を挟む。
// 連打による課金増とバックエンド負荷を抑えるため、
// 上限超過時はネットワークを呼ばずに拒否する。
type Pipeline struct {
	api     AssistAPI
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPipeline はPipelineの新しいインスタンスを生成する。
// perMinuteは1分あたりの呼び出し上限、burstは瞬間的に許容する連続呼び出し数。
func NewPipeline(assistAPI AssistAPI, perMinute int, burst int, logger *slog.Logger, rec metrics.Recorder) *Pipeline {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Pipeline{
		api:     assistAPI,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		logger:  logger,
		metrics: rec,
	}
}

// Run はAIアシストを実行する。
//   - 本文が空白のみの場合はネットワークを呼ばずに拒否する。
//   - レート上限を超えた場合も同様に拒否する。
func (p *Pipeline) Run(ctx context.Context, action Action, text string) (*model.AIAssistResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("不明なAIアシスト動作です: %s", action)
	}
	if strings.TrimSpace(text) == "" {
		return nil, model.NewEmptyContentError()
	}

	if !p.limiter.Allow() {
		p.logger.Warn("AIアシストのレート上限に達しました", slog.String("action", action.String()))
		p.metrics.RecordAssist(action.String(), false)
		return nil, model.NewAIRateLimitedError()
	}

	result, err := p.api.Assist(ctx, action.String(), text)
	if err != nil {
		p.metrics.RecordAssist(action.String(), false)
		return nil, fmt.Errorf("AIアシストの呼び出しに失敗しました: %w", err)
	}

	p.metrics.RecordAssist(action.String(), true)
	p.logger.Info("AIアシストを実行しました", slog.String("action", action.String()))
	return result, nil
}
