package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 通知数量，kind: motion / ding / other
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringgazer_notifications_total",
			Help: "Total number of camera notifications received",
		},
		[]string{"kind"},
	)

	// 快照上传结果，result: success / snapshot_error / upload_error
	SnapshotUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringgazer_snapshot_uploads_total",
			Help: "Total number of doorbell snapshot uploads by result",
		},
		[]string{"result"},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringgazer_webhook_deliveries_total",
			Help: "Total number of webhook deliveries by result",
		},
		[]string{"result"},
	)

	LocationConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ringgazer_location_connected",
			Help: "Location realtime connection state (1 = connected)",
		},
		[]string{"location"},
	)

	TokenRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringgazer_token_rotations_total",
			Help: "Total number of refresh token rotations by persistence result",
		},
		[]string{"result"},
	)

	DingPollErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ringgazer_ding_poll_errors_total",
			Help: "Total number of failed active ding polls",
		},
	)
)

// 结果标签
const (
	ResultSuccess       = "success"
	ResultSnapshotError = "snapshot_error"
	ResultUploadError   = "upload_error"
	ResultError         = "error"
	ResultSkipped       = "skipped"
)
