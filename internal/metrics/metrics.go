// Package metrics holds the service's Prometheus collectors
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClicksRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promoledger_clicks_recorded_total",
		Help: "Clicks recorded by device class",
	}, []string{"device"})

	// outcome: booked, duplicate, no_attribution, expired, error
	ConversionsBooked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promoledger_conversions_total",
		Help: "Purchase notifications by attribution outcome",
	}, []string{"outcome"})

	ConversionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promoledger_conversion_transitions_total",
		Help: "Conversion status changes",
	}, []string{"to"})

	PayoutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promoledger_payout_transitions_total",
		Help: "Payout status changes",
	}, []string{"to"})

	ForwardingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promoledger_forwarding_failures_total",
		Help: "Conversion events the forwarding sink failed to accept",
	}, []string{"sink"})

	PostbackLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promoledger_postback_duration_seconds",
		Help:    "Ad platform postback latency",
		Buckets: prometheus.DefBuckets,
	})

	ReconciledLinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promoledger_reconciled_links_total",
		Help: "Tracking links whose counters were corrected by reconciliation",
	})
)
