// Package observability provides logging, metrics, and tracing
// for the gateway.
//
// # Logging
//
// The Logger interface wraps zap. Its level is shared by every derived
// logger and can be changed at runtime:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
//	logger.Info("listening", observability.String("addr", ":8080"))
//
// # Metrics
//
// Metrics owns a private Prometheus registry:
//
//	metrics := observability.NewMetrics("gateway")
//	router.GET("/metrics", gin.WrapH(metrics.Handler()))
//
// # Tracing
//
// Tracer exports spans over OTLP/gRPC when enabled and is a no-op otherwise.
package observability
