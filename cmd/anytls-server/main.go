// Command anytls-server runs the AnyTLS server dispatcher behind a TLS
// listener, with an optional Prometheus metrics endpoint.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/config"
	"github.com/anytls/anytls-go/pkg/metrics"
	"github.com/anytls/anytls-go/pkg/server"
	"github.com/anytls/anytls-go/pkg/tlsconfig"
)

func main() {
	listenAddr := flag.String("listen", ":8443", "address to accept AnyTLS connections on")
	password := flag.String("password", "", "shared password clients authenticate with")
	certFile := flag.String("cert", "", "PEM certificate file")
	keyFile := flag.String("key", "", "PEM private key file")
	metricsAddr := flag.String("metrics", "", "address to serve Prometheus /metrics on, empty disables it")
	maxConns := flag.Int("max-conns", 0, "cap on concurrently accepted connections, 0 means unlimited")
	devMode := flag.Bool("dev", false, "log at debug level instead of info")
	flag.Parse()

	logger := newLogger(*devMode)
	defer logger.Sync()

	if *password == "" {
		logger.Fatal("-password is required")
	}
	if *certFile == "" || *keyFile == "" {
		logger.Fatal("-cert and -key are required")
	}

	cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
	if err != nil {
		logger.Fatal("failed to load certificate", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	cfg := config.DefaultServerConfig()
	cfg.Password = *password
	cfg.TLSConfig = tlsconfig.NewServerConfig(cert)
	cfg.MaxConnections = *maxConns
	cfg.Logger = logger
	cfg.Metrics = m

	srv, err := server.New(cfg)
	if err != nil {
		logger.Fatal("failed to construct server", zap.Error(err))
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}
	logger.Info("listening", zap.String("addr", *listenAddr))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *metricsAddr != "" {
		go serveMetrics(ctx, *metricsAddr, reg, logger)
	}

	if err := srv.Serve(ctx, ln); err != nil {
		logger.Error("server exited", zap.Error(err))
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	return l
}
