// Package metricsserver runs the standalone Prometheus scrape endpoint used
// by the recording proxy.
package metricsserver

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// MetricsHandler is implemented by metrics collectors that can serve their
// own scrape endpoint.
type MetricsHandler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// Start launches the metrics server in a goroutine. Returns nil when
// metrics are disabled. The scrape endpoint always runs on its own port so
// it never mixes with proxied traffic.
func Start(
	enabled bool,
	listen string,
	path string,
	handler MetricsHandler,
	logger *zap.Logger,
) (*fasthttp.Server, error) {
	if !enabled {
		logger.Debug("Metrics collection disabled")
		return nil, nil
	}

	srv := &fasthttp.Server{
		Handler:            route(path, handler),
		Name:               "replay-verifier-metrics",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1 * 1024,
	}

	go func() {
		logger.Info("Metrics server listening",
			zap.String("listen", listen),
			zap.String("path", path))
		if err := srv.ListenAndServe(listen); err != nil {
			logger.Error("Metrics server stopped",
				zap.String("listen", listen),
				zap.Error(err))
		}
	}()

	return srv, nil
}

func route(path string, handler MetricsHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == path {
			handler.ServeHTTP(ctx)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("Not Found")
	}
}
