// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はクライアント操作のメトリクス収集インターフェース。
// APIクライアントや各サービス層から利用する。
type Recorder interface {
	RecordAPIRequest(endpoint string, statusCode int)
	RecordAPILatency(endpoint string, duration time.Duration)
	RecordAssist(action string, success bool)
	RecordPublish()
	RecordImageUpload(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests  *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	assistCalls  *prometheus.CounterVec
	publishes    prometheus.Counter
	imageUploads *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparkle_api_requests_total",
			Help: "バックエンドAPIリクエストのエンドポイント・ステータス別合計数",
		}, []string{"endpoint", "status_code"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sparkle_api_latency_seconds",
			Help:    "バックエンドAPIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		assistCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparkle_assist_calls_total",
			Help: "AIアシスト呼び出しのアクション・結果別合計数",
		}, []string{"action", "result"}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkle_publishes_total",
			Help: "投稿公開の合計数",
		}),
		imageUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparkle_image_uploads_total",
			Help: "画像アップロードの結果別合計数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.assistCalls,
		c.publishes,
		c.imageUploads,
	)

	return c
}

// RecordAPIRequest はAPIリクエストの完了を記録する。
func (c *Collector) RecordAPIRequest(endpoint string, statusCode int) {
	c.apiRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordAPILatency はAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordAPILatency(endpoint string, duration time.Duration) {
	c.apiLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAssist はAIアシスト呼び出しを記録する。
func (c *Collector) RecordAssist(action string, success bool) {
	c.assistCalls.WithLabelValues(action, resultLabel(success)).Inc()
}

// RecordPublish は投稿公開を記録する。
func (c *Collector) RecordPublish() {
	c.publishes.Inc()
}

// RecordImageUpload は画像アップロードを記録する。
func (c *Collector) RecordImageUpload(success bool) {
	c.imageUploads.WithLabelValues(resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Nop は何も記録しないRecorder。テストおよびメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordAPIRequest(endpoint string, statusCode int)            {}
func (Nop) RecordAPILatency(endpoint string, duration time.Duration)    {}
func (Nop) RecordAssist(action string, success bool)                    {}
func (Nop) RecordPublish()                                              {}
func (Nop) RecordImageUpload(success bool)                              {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
