package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/annel0/citystream/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Setup поднимает OTLP-экспорт трассировки и делает его глобальным
// провайдером: спаны стримера (переоценка, drain) и otelgin начинают
// уходить в коллектор. Адрес берётся из CITYSTREAM_OTLP_ENDPOINT
// (по умолчанию localhost:4318, без TLS — коллектор живёт рядом).
// Возвращает shutdown, который нужно вызвать при остановке сервера.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
	if ep := os.Getenv("CITYSTREAM_OTLP_ENDPOINT"); ep != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(ep))
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("создание OTLP экспортера: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion("0.1.0"),
	))
	if err != nil {
		return nil, fmt.Errorf("описание сервиса: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logging.Info("📡 Трассировка включена: service=%s", serviceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}
