// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// チェックインサービス、認証サービス、HTTPミドルウェアから利用する。
type Collector struct {
	checkins          *prometheus.CounterVec
	guestCheckins     prometheus.Counter
	firstTimerCleared prometheus.Counter
	registrations     prometheus.Counter
	authEvents        *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	checkinDuration   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_total",
			Help: "結果別のチェックイン数（created, existing, conflict）",
		}, []string{"result"}),
		guestCheckins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkin_guest_total",
			Help: "所属拠点以外でのチェックイン数",
		}),
		firstTimerCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkin_first_timer_cleared_total",
			Help: "初来会フラグが解除されたメンバー数",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkin_members_registered_total",
			Help: "初来会として登録されたメンバー数",
		}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_auth_events_total",
			Help: "管理者認証イベント数",
		}, []string{"event", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		checkinDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkin_duration_seconds",
			Help:    "チェックイン処理の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.checkins,
		c.guestCheckins,
		c.firstTimerCleared,
		c.registrations,
		c.authEvents,
		c.httpStatus,
		c.checkinDuration,
	)

	return c
}

// RecordCheckin はチェックインの結果と所要時間を記録する。
// ゲストの集計は新規作成された記録のみを対象とする。
func (c *Collector) RecordCheckin(result string, guest bool, duration time.Duration) {
	c.checkins.WithLabelValues(result).Inc()
	if guest && result == "created" {
		c.guestCheckins.Inc()
	}
	c.checkinDuration.Observe(duration.Seconds())
}

// RecordFirstTimerCleared は初来会フラグの解除を記録する。
func (c *Collector) RecordFirstTimerCleared() {
	c.firstTimerCleared.Inc()
}

// RecordMemberRegistered は初来会メンバーの登録を記録する。
func (c *Collector) RecordMemberRegistered() {
	c.registrations.Inc()
}

// RecordAuthEvent は認証イベントの成否を記録する。
func (c *Collector) RecordAuthEvent(event string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
