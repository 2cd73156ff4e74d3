package platformmetrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.RecordGeneration(snowflake.ID(1), "First Term 2024/2025", 10, 10)
	r.SetSchoolsTotal(3)
	assert.Nil(t, r.Registry())
}

func TestRecordGeneration(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())
	r.RecordGeneration(snowflake.ID(42), "First Term 2024/2025", 120, 100)
	r.RecordGeneration(snowflake.ID(42), "First Term 2024/2025", 130, 10)
	r.RecordGeneration(snowflake.ID(42), " ", 5, 0)

	assert.InDelta(t, 130, testutil.ToFloat64(r.billableStudents.WithLabelValues("42", "First Term 2024/2025")), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(r.billableStudents.WithLabelValues("42", "unknown")), 0)
	assert.InDelta(t, 110, testutil.ToFloat64(r.invoicesGenerated.WithLabelValues("42")), 0)
}

func TestNewPusherSelectsExporter(t *testing.T) {
	cfg := config.Config{AppName: "schoolpay"}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))

	cfg.Metrics = config.PlatformMetricsConfig{Enabled: true, Exporter: ExporterRemoteWrite}
	assert.Nil(t, NewPusher(cfg, zap.NewNop()), "endpoint is required")

	cfg.Metrics.Endpoint = "http://metrics.example.com/api/v1/write"
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.Metrics.Exporter = ExporterPushgateway
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, zap.NewNop()))

	cfg.Metrics.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, zap.NewNop()))
}

func TestRemoteWritePush(t *testing.T) {
	var (
		got    prompb.WriteRequest
		header http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		header = req.Header.Clone()
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(raw, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := NewRecorder(prometheus.NewRegistry())
	r.SetSchoolsTotal(7)

	pusher := NewRemoteWritePusher(srv.URL, "secret")
	require.NoError(t, pusher.Push(context.Background(), r.Registry()))

	assert.Equal(t, "Bearer secret", header.Get("Authorization"))
	assert.Equal(t, "snappy", header.Get("Content-Encoding"))
	require.Len(t, got.Timeseries, 1)
	assert.Equal(t, "schoolpay_platform_schools_total", got.Timeseries[0].Labels[0].Value)
	assert.InDelta(t, 7, got.Timeseries[0].Samples[0].Value, 0)
}

func TestRemoteWritePushReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewRecorder(nil)
	r.SetSchoolsTotal(1)
	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), r.Registry())
	assert.ErrorContains(t, err, "502")
}

type countingPusher struct{ calls int }

func (p *countingPusher) Push(context.Context, *prometheus.Registry) error {
	p.calls++
	return nil
}

func TestWorkerPushOnceWithoutDB(t *testing.T) {
	pusher := &countingPusher{}
	w := NewWorker(NewRecorder(nil), pusher, nil, 0, nil)
	w.PushOnce(context.Background())
	assert.Equal(t, 1, pusher.calls)
}
