// Package tracing はフレーム発行とRPCの分散トレースを提供する
//
// Zipkin のホストが設定されていれば OpenTelemetry のスパンを Zipkin に送り、
// 設定されていなければ何もしないトレーサを使う。
// トレースコンテキストは W3C trace-context 形式でメッセージのメタデータに載せる。
package tracing

import (
	"context"
	"fmt"
	"log"
	"time"

	"camgateway/internal/status"
	"camgateway/internal/transport"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "camgateway"

// Tracer はスパンの開始とトレースコンテキストの受け渡しを行う
type Tracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	shutdown   func(context.Context) error
}

// ZipkinEndpoint は Zipkin のスパン受付URLを返す
func ZipkinEndpoint(host string, port int) string {
	return fmt.Sprintf("http://%s:%d/api/v2/spans", host, port)
}

// New は Zipkin に送るトレーサを作成する。host が空なら何もしないトレーサを返す
func New(serviceName, host string, port int) (*Tracer, error) {
	if host == "" {
		log.Printf("[tracing] Zipkin が設定されていないためトレースを無効にします")
		return Noop(), nil
	}

	endpoint := ZipkinEndpoint(host, port)
	exporter, err := zipkin.New(endpoint)
	if err != nil {
		return nil, fmt.Errorf("Zipkin エクスポーターの作成に失敗しました: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	log.Printf("[tracing] スパンを %s に送信します (service=%s)", endpoint, serviceName)

	t := NewWithProvider(tp)
	t.shutdown = tp.Shutdown
	return t, nil
}

// NewWithProvider は任意のプロバイダからトレーサを作成する
func NewWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer:     tp.Tracer(instrumentationName),
		propagator: propagation.TraceContext{},
		shutdown:   func(context.Context) error { return nil },
	}
}

// Noop は何も記録しないトレーサを返す
func Noop() *Tracer {
	return NewWithProvider(noop.NewTracerProvider())
}

// StartFrameSpan はキャプチャ時刻を開始時刻とするフレームのスパンを開始する
func (t *Tracer) StartFrameSpan(ctx context.Context, captured time.Time) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "Frame",
		trace.WithTimestamp(captured),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// Inject はコンテキストのトレース情報をメッセージのメタデータに書き込む
func (t *Tracer) Inject(ctx context.Context, msg *transport.Message) {
	if msg.Metadata == nil {
		msg.Metadata = make(map[string]string)
	}
	t.propagator.Inject(ctx, propagation.MapCarrier(msg.Metadata))
}

// Extract はメッセージのメタデータからトレース情報を読み出す
func (t *Tracer) Extract(ctx context.Context, msg *transport.Message) context.Context {
	if len(msg.Metadata) == 0 {
		return ctx
	}
	return t.propagator.Extract(ctx, propagation.MapCarrier(msg.Metadata))
}

// RequestOption はRPCリクエストにトレース情報を載せる
func (t *Tracer) RequestOption() transport.RequestOption {
	return func(ctx context.Context, msg *transport.Message) {
		t.Inject(ctx, msg)
	}
}

// Interceptor はRPCの処理をスパンで包む
func (t *Tracer) Interceptor() transport.Interceptor {
	return func(next transport.Handler) transport.Handler {
		return func(ctx context.Context, req *transport.Message) (*transport.Message, error) {
			ctx, span := t.tracer.Start(t.Extract(ctx, req), req.Topic,
				trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			rep, err := next(ctx, req)
			span.SetAttributes(attribute.String("rpc.status", status.CodeOf(err).String()))
			if err != nil {
				span.SetStatus(codes.Error, status.WhyOf(err))
			}
			return rep, err
		}
	}
}

// Shutdown は未送信のスパンを送ってから終了する
func (t *Tracer) Shutdown(ctx context.Context) error {
	if err := t.shutdown(ctx); err != nil {
		return fmt.Errorf("トレーサの終了に失敗しました: %w", err)
	}
	return nil
}
