// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the CMS Prometheus collectors.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	MailDispatch   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the CMS metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_auth_operations_total",
				Help: "Total number of account operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		MailDispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_mail_dispatch_total",
				Help: "Total number of account emails by template and status",
			},
			[]string{"template", "status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_http_requests_total",
				Help: "Total number of API requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cms_http_request_duration_seconds",
				Help:    "API request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.AuthOperations, m.MailDispatch, m.HTTPRequests, m.HTTPDuration)
	return m
}

// RecordAuthOperation implements auth.Recorder.
func (m *Metrics) RecordAuthOperation(operation, result string) {
	m.AuthOperations.WithLabelValues(operation, result).Inc()
}

// RecordMailDispatch implements notify.DispatchRecorder.
func (m *Metrics) RecordMailDispatch(template, status string) {
	m.MailDispatch.WithLabelValues(template, status).Inc()
}

// ObserveHTTPRequest records one API request.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
