// Package metrics exposes Prometheus collectors for the gateway.
//
// Usage:
//
//	metrics.SetConnectionStatus("connected", true)
//	metrics.RecordMessageSent("ok")
//	metrics.RecordMessageReceived("Text")
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var statuses = []string{"disconnected", "connecting", "connected"}

var (
	// ConnectionStatus is 1 for the current coarse connection phase, 0 otherwise.
	ConnectionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_connection_status",
			Help: "Current WhatsApp connection phase (1 = active phase)",
		},
		[]string{"status"},
	)

	// SessionReady reports whether the linked session is ready to send.
	SessionReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_session_ready",
			Help: "Whether the WhatsApp session is ready to send messages",
		},
	)

	// MessagesSentTotal counts send attempts by outcome.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_messages_sent_total",
			Help: "Total outgoing text messages by result",
		},
		[]string{"result"},
	)

	// MessagesReceivedTotal counts inbound messages by content type.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_messages_received_total",
			Help: "Total inbound messages by type",
		},
		[]string{"type"},
	)

	// QRCodesIssuedTotal counts pairing codes issued by the messaging client.
	QRCodesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_qr_codes_issued_total",
			Help: "Total QR pairing codes issued",
		},
	)

	// WebhookDeliveriesTotal counts webhook deliveries by result.
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhook_deliveries_total",
			Help: "Total webhook deliveries by result",
		},
		[]string{"result"},
	)
)

// SetConnectionStatus flips the phase gauge and the readiness gauge.
func SetConnectionStatus(status string, ready bool) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		ConnectionStatus.WithLabelValues(s).Set(v)
	}
	if ready {
		SessionReady.Set(1)
	} else {
		SessionReady.Set(0)
	}
}

func RecordMessageSent(result string) {
	MessagesSentTotal.WithLabelValues(result).Inc()
}

func RecordMessageReceived(kind string) {
	MessagesReceivedTotal.WithLabelValues(kind).Inc()
}

func RecordQRIssued() {
	QRCodesIssuedTotal.Inc()
}

func RecordWebhookDelivery(result string) {
	WebhookDeliveriesTotal.WithLabelValues(result).Inc()
}
