// Package metrics exposes the bot's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_updates_total",
		Help: "Telegram updates received, by kind.",
	}, []string{"kind"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_deliveries_total",
		Help: "Link deliveries, by outcome.",
	}, []string{"outcome"})

	MembershipChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_membership_checks_total",
		Help: "Membership gate evaluations, by result.",
	}, []string{"result"})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_payments_total",
		Help: "Payment request transitions, by status reached.",
	}, []string{"status"})

	HandlerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_handler_errors_total",
		Help: "Handler failures, by error code.",
	}, []string{"code"})
)
