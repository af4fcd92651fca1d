package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/propfront/propfront/internal/config"
)

// NewLogger builds the process logger. With OTel logs enabled records go
// through the otelslog bridge; otherwise they are written to w.
func NewLogger(cfg *config.Config, w io.Writer, lp *sdklog.LoggerProvider) *slog.Logger {
	if lp != nil {
		return slog.New(otelslog.NewHandler(cfg.OTEL.ServiceName, otelslog.WithLoggerProvider(lp)))
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// InitLogProvider returns nil when OTel logs are disabled.
func InitLogProvider(ctx context.Context, cfg *config.Config) (*sdklog.LoggerProvider, error) {
	if !cfg.OTEL.LogsEnabled {
		return nil, nil
	}
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTEL.ExporterEndpoint)}
	if cfg.OTEL.ExporterInsecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp log exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create log resource: %w", err)
	}
	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	), nil
}

func ParseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
