// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/healthsync/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期オーケストレータやゲートウェイ、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordSyncRun(syncType model.SyncType, status model.SyncStatus)
	RecordRowsImported(count int)
	RecordRowsExported(entity string, count int)
	RecordRowErrors(count int)
	RecordSheetsAPILatency(duration time.Duration)
	RecordSheetsAPIStatus(statusCode int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncRuns      *prometheus.CounterVec
	rowsImported  prometheus.Counter
	rowsExported  *prometheus.CounterVec
	rowErrors     prometheus.Counter
	sheetsLatency prometheus.Histogram
	sheetsStatus  *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_sync_runs_total",
			Help: "同期実行の種別・結果別の合計数",
		}, []string{"sync_type", "status"}),
		rowsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthsync_rows_imported_total",
			Help: "シートから取り込んだ行の合計数",
		}),
		rowsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_rows_exported_total",
			Help: "シートへ書き出した行のエンティティ別合計数",
		}, []string{"entity"}),
		rowErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthsync_row_errors_total",
			Help: "取り込み時の行単位エラーの合計数",
		}),
		sheetsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthsync_sheets_api_latency_seconds",
			Help:    "シートAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sheetsStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_sheets_api_status_total",
			Help: "シートAPIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthsync_http_status_total",
			Help: "APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.syncRuns,
		c.rowsImported,
		c.rowsExported,
		c.rowErrors,
		c.sheetsLatency,
		c.sheetsStatus,
		c.httpStatus,
	)

	return c
}

// RecordSyncRun は同期実行の完了を記録する。
func (c *Collector) RecordSyncRun(syncType model.SyncType, status model.SyncStatus) {
	c.syncRuns.WithLabelValues(string(syncType), string(status)).Inc()
}

// RecordRowsImported は取り込んだ行数を記録する。
func (c *Collector) RecordRowsImported(count int) {
	c.rowsImported.Add(float64(count))
}

// RecordRowsExported は書き出した行数をエンティティ別に記録する。
func (c *Collector) RecordRowsExported(entity string, count int) {
	c.rowsExported.WithLabelValues(entity).Add(float64(count))
}

// RecordRowErrors は行単位エラー数を記録する。
func (c *Collector) RecordRowErrors(count int) {
	c.rowErrors.Add(float64(count))
}

// RecordSheetsAPILatency はシートAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordSheetsAPILatency(duration time.Duration) {
	c.sheetsLatency.Observe(duration.Seconds())
}

// RecordSheetsAPIStatus はシートAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordSheetsAPIStatus(statusCode int) {
	c.sheetsStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPStatus はAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
