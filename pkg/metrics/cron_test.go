package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "test-job"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.IncSkipped(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "marketplace_cron_job_success_total", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "marketplace_cron_job_failure_total", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "marketplace_cron_job_skipped_total", "job", job); err != nil {
		t.Fatalf("fetch skipped: %v", err)
	} else if got != 1 {
		t.Fatalf("expected skipped=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "marketplace_cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestCommerceMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCommerceMetrics(reg)
	m.IncCheckout("created")
	m.IncWebhookEvent("checkout.session.completed", "processed")
	m.AddOrdersPaid(2)
	m.AddOrdersPaid(0)
	m.IncOversold()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_checkout_sessions_total", "result", "created"); err != nil || got != 1 {
		t.Fatalf("checkout counter = %f, %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_webhook_events_total", "outcome", "processed"); err != nil || got != 1 {
		t.Fatalf("webhook counter = %f, %v", got, err)
	}
	paid := findMetricFamily(mfs, "marketplace_orders_paid_total")
	if paid == nil || paid.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("expected orders paid = 2")
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var c *CronJobMetrics
	c.IncSuccess("x")
	var m *CommerceMetrics
	m.IncCheckout("x")
	NewCommerceMetrics(nil).IncOversold()
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("GET", "/api/v1/products/{slug}", 200, 15*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_http_requests_total", "route", "/api/v1/products/{slug}"); err != nil || got != 1 {
		t.Fatalf("route counter = %f, %v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_http_requests_total", "route", "unknown"); err != nil || got != 1 {
		t.Fatalf("unknown route counter = %f, %v", got, err)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/", 200, time.Millisecond)
}
