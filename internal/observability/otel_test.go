package observability

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func testSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestInitMeterProvider(t *testing.T) {
	mp, err := InitMeterProvider(Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	})
	require.NoError(t, err)
	require.NotNil(t, mp)
	require.NotNil(t, mp.provider)
	require.NotNil(t, mp.Exporter())

	assert.NoError(t, mp.Shutdown(context.Background(), testSlog()))
}

func TestInitMetrics(t *testing.T) {
	mp, err := InitMeterProvider(Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
	})
	require.NoError(t, err)
	defer mp.Shutdown(context.Background(), testSlog())

	metrics, err := InitMetrics(testSlog())
	require.NoError(t, err)
	require.NotNil(t, metrics)

	require.NotNil(t, metrics.requestDuration)
	require.NotNil(t, metrics.requestCounter)
	require.NotNil(t, metrics.errorCounter)
	require.NotNil(t, metrics.activeRequests)
}

func TestParseOTLPProtocol(t *testing.T) {
	tests := []struct {
		input     string
		want      otlpProtocol
		expectErr bool
	}{
		{input: "", want: otlpProtocolGRPC},
		{input: "grpc", want: otlpProtocolGRPC},
		{input: " GRPC ", want: otlpProtocolGRPC},
		{input: "http", want: otlpProtocolHTTP},
		{input: "http/protobuf", want: otlpProtocolHTTP},
		{input: "thrift", expectErr: true},
	}

	for _, tt := range tests {
		got, err := parseOTLPProtocol(tt.input)
		if tt.expectErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestBuildTLSConfig(t *testing.T) {
	dir := t.TempDir()
	badPEM := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(badPEM, []byte("not-a-cert"), 0600))

	tests := []struct {
		name    string
		cfg     OTLPExporterConfig
		wantErr string
	}{
		{
			name:    "missing CA file",
			cfg:     OTLPExporterConfig{TLSCertFile: "/nonexistent/ca.pem"},
			wantErr: "failed to read OTLP TLS CA file",
		},
		{
			name:    "invalid CA payload",
			cfg:     OTLPExporterConfig{TLSCertFile: badPEM},
			wantErr: "failed to parse OTLP TLS CA file",
		},
		{
			name:    "client cert without key",
			cfg:     OTLPExporterConfig{TLSClientCertFile: badPEM},
			wantErr: "OTLP TLS client cert and key must both be set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTLSConfig(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("empty config succeeds", func(t *testing.T) {
		tlsConfig, err := buildTLSConfig(OTLPExporterConfig{})
		require.NoError(t, err)
		assert.Nil(t, tlsConfig.RootCAs)
		assert.Empty(t, tlsConfig.Certificates)
	})
}

func TestTraceSamplerForRatio_Boundaries(t *testing.T) {
	never := traceSamplerForRatio(0)
	always := traceSamplerForRatio(1)

	decisionNever := never.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{1},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionNever)

	decisionAlways := always.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{2},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionAlways)
}

func TestTraceSamplerForRatio_ParentAwareMidRange(t *testing.T) {
	sampler := traceSamplerForRatio(0.5)

	parentSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	decisionSampledParent := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentSampled,
		TraceID:       trace.TraceID{4},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionSampledParent)

	parentNotSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))
	decisionUnsampledParent := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentNotSampled,
		TraceID:       trace.TraceID{6},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionUnsampledParent)
}
