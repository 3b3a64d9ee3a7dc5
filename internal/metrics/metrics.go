// Package metrics はsecret-providerのPrometheusメトリクスを提供する。
//
// 受け付けたリクエストと外部呼び出し（ログイン、シークレット読み取り、
// トークン交換）の件数と所要時間を記録する。ラベルにシークレット名や
// トークンなどの機密情報は含めない。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace はメトリクス名の接頭辞。
const namespace = "secret_provider"

// Metrics はsecret-providerが公開するメトリクスの集合。
// nilレシーバーでも安全に呼び出せる（記録しない）。
type Metrics struct {
	// registry はメトリクスを登録するレジストリ。
	registry *prometheus.Registry
	// requestsTotal はエンドポイントとステータスコードごとのリクエスト数。
	requestsTotal *prometheus.CounterVec
	// requestDuration はエンドポイントごとのリクエスト処理時間。
	requestDuration *prometheus.HistogramVec
	// outboundCallsTotal は外部呼び出しの種類と結果ごとの件数。
	outboundCallsTotal *prometheus.CounterVec
	// outboundCallDuration は外部呼び出しの種類ごとの所要時間。
	outboundCallDuration *prometheus.HistogramVec
}

// New は独自のレジストリを持つMetricsを生成する。
// Goランタイムとプロセスのコレクタも登録する。
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled, by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request handling latency, by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		outboundCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_calls_total",
			Help:      "Total number of calls to the secret backend and identity provider, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		outboundCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbound_call_duration_seconds",
			Help:      "Latency of calls to the secret backend and identity provider, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.outboundCallsTotal,
		m.outboundCallDuration,
	)
	return m
}

// Handler はメトリクスを公開するHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRequest は受け付けたHTTPリクエストを記録する。
func (m *Metrics) ObserveRequest(endpoint string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveOutboundCall は外部呼び出しを記録する。
func (m *Metrics) ObserveOutboundCall(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outboundCallsTotal.WithLabelValues(operation, outcome).Inc()
	m.outboundCallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
