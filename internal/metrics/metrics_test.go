package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/types"
)

func sampleSummary() *types.RunSummary {
	start := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	return &types.RunSummary{
		RunID:             "run_1",
		Trigger:           types.TriggerScheduled,
		EvaluatedUsers:    40,
		WarningsCreated:   3,
		SkippedUsers:      []string{"u_1"},
		NotificationsSent: 2,
		StartedAt:         start,
		FinishedAt:        start.Add(1500 * time.Millisecond),
	}
}

// ============================================================
// PrometheusRecorder
// ============================================================

// gathered returns the value of every counter and gauge sample on reg,
// keyed by metric name. Labelled samples are summed.
func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestPrometheusRecorder_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	s := sampleSummary()

	rec.RecordRun(context.Background(), s)
	rec.RecordRun(context.Background(), s)

	got := gathered(t, reg)
	assert.Equal(t, 2.0, got["guardian_detection_runs_total"])
	assert.Equal(t, 2.0, got["guardian_detection_run_duration_seconds"])
	assert.Equal(t, 80.0, got["guardian_detection_evaluated_users_total"])
	assert.Equal(t, 6.0, got["guardian_warnings_created_total"])
	assert.Equal(t, 2.0, got["guardian_detection_skipped_users_total"])
	assert.Equal(t, 4.0, got["guardian_notify_admin_events_total"])
	assert.Equal(t, float64(s.FinishedAt.Unix()), got["guardian_detection_last_run_timestamp_seconds"])
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	rec := NewPrometheusRecorder(nil)
	rec.RecordRun(context.Background(), sampleSummary())

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "guardian_warnings_created_total 3"))
	assert.Contains(t, string(body), "go_goroutines")
}

func TestPrometheusRecorder_RecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.RecordRequest(http.MethodGet, "/v1/admin/rules/{id}", "200", 20*time.Millisecond)
	rec.RecordRequest(http.MethodGet, "/v1/admin/rules/{id}", "404", 5*time.Millisecond)
	rec.RecordRequest(http.MethodPost, "/v1/admin/detection/run", "409", time.Millisecond)

	got := gathered(t, reg)
	assert.Equal(t, 3.0, got["guardian_http_requests_total"])
	assert.Equal(t, 3.0, got["guardian_http_request_duration_seconds"])
}

// ============================================================
// CloudWatchRecorder
// ============================================================

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatchRecorder_RecordRun(t *testing.T) {
	client := &mockCloudWatch{}
	rec := NewCloudWatchRecorder(client, "Guardian", nil)

	rec.RecordRun(context.Background(), sampleSummary())

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "Guardian", aws.ToString(in.Namespace))

	values := map[string]float64{}
	for _, d := range in.MetricData {
		values[aws.ToString(d.MetricName)] = aws.ToFloat64(d.Value)
		require.Len(t, d.Dimensions, 2)
		assert.Equal(t, types.JobStatusPartial, aws.ToString(d.Dimensions[0].Value))
	}
	assert.Equal(t, map[string]float64{
		MetricEvaluatedUsers:    40,
		MetricWarningsCreated:   3,
		MetricSkippedUsers:      1,
		MetricNotificationsSent: 2,
		MetricRunDuration:       1500,
	}, values)
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, in.MetricData[4].Unit)
}

func TestCloudWatchRecorder_ErrorIsSwallowed(t *testing.T) {
	client := &mockCloudWatch{err: errors.New("throttled")}
	rec := NewCloudWatchRecorder(client, "Guardian", nil)

	assert.NotPanics(t, func() {
		rec.RecordRun(context.Background(), sampleSummary())
	})
	assert.Len(t, client.inputs, 1)
}
