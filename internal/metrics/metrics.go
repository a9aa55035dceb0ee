// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ステージサービスやクーポンサービスから利用する。
type MetricsCollector interface {
	RecordAISuccess(stage string, duration time.Duration)
	RecordAIFailure(stage string)
	RecordDeduction(amount int)
	RecordRefund(amount int)
	RecordGrant(amount int)
	RecordInsufficientBalance()
	RecordCouponRedeemed(amount int)
	RecordCouponRejected()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	aiSuccess           *prometheus.CounterVec
	aiFail              *prometheus.CounterVec
	aiLatency           *prometheus.HistogramVec
	creditsDeducted     prometheus.Counter
	creditsRefunded     prometheus.Counter
	creditsGranted      prometheus.Counter
	insufficientBalance prometheus.Counter
	couponsRedeemed     prometheus.Counter
	couponCredits       prometheus.Counter
	couponsRejected     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		aiSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronbun_ai_success_total",
			Help: "AI呼び出し成功のステージ別合計数",
		}, []string{"stage"}),
		aiFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ronbun_ai_fail_total",
			Help: "AI呼び出し失敗のステージ別合計数",
		}, []string{"stage"}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ronbun_ai_latency_seconds",
			Help:    "AI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		creditsDeducted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ronbun_credits_deducted_total",
			Help: "減算されたエネルギーの合計量",
		}),
		creditsRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ronbun_credits_refunded_total",
			Help: "払い戻されたエネルギーの合計量",
		}),
		creditsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ronbun_credits_granted_total",
			Help: "付与されたエネルギーの合計量（初期付与・クーポン）",
		}),
		insufficientBalance: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ronbun_insufficient_balance_total",
			Help: "残高不足で拒否された操作の合計数",
		}),
		couponsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ronbun_coupons_redeemed_total",
			Help: "使用されたクーポンの合計数",
		}),
		couponCredits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ronbun_coupon_credits_total",
			Help: "クーポンでチャージされたエネルギーの合計量",
		}),
		couponsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ronbun_coupons_rejected_total",
			Help: "拒否されたクーポンの合計数（形式不正・期限切れ・使用済み）",
		}),
	}

	reg.MustRegister(
		c.aiSuccess,
		c.aiFail,
		c.aiLatency,
		c.creditsDeducted,
		c.creditsRefunded,
		c.creditsGranted,
		c.insufficientBalance,
		c.couponsRedeemed,
		c.couponCredits,
		c.couponsRejected,
	)

	return c
}

// RecordAISuccess はAI呼び出し成功とレイテンシを記録する。
func (c *Collector) RecordAISuccess(stage string, duration time.Duration) {
	c.aiSuccess.WithLabelValues(stage).Inc()
	c.aiLatency.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordAIFailure はAI呼び出し失敗を記録する。
func (c *Collector) RecordAIFailure(stage string) {
	c.aiFail.WithLabelValues(stage).Inc()
}

// RecordDeduction はエネルギー減算を記録する。
func (c *Collector) RecordDeduction(amount int) {
	c.creditsDeducted.Add(float64(amount))
}

// RecordRefund はエネルギー払い戻しを記録する。
func (c *Collector) RecordRefund(amount int) {
	c.creditsRefunded.Add(float64(amount))
}

// RecordGrant はエネルギー付与を記録する。
func (c *Collector) RecordGrant(amount int) {
	c.creditsGranted.Add(float64(amount))
}

// RecordInsufficientBalance は残高不足による操作拒否を記録する。
func (c *Collector) RecordInsufficientBalance() {
	c.insufficientBalance.Inc()
}

// RecordCouponRedeemed はクーポン使用を記録する。
func (c *Collector) RecordCouponRedeemed(amount int) {
	c.couponsRedeemed.Inc()
	c.couponCredits.Add(float64(amount))
}

// RecordCouponRejected はクーポン拒否を記録する。
func (c *Collector) RecordCouponRejected() {
	c.couponsRejected.Inc()
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
