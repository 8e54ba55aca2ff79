package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/config"
	"github.com/stefanposs/webmacs/infrastructure/logging"
	"github.com/stefanposs/webmacs/infrastructure/middleware"
	"github.com/stefanposs/webmacs/internal/httpapi"
	"github.com/stefanposs/webmacs/internal/runtime"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to :$PORT, or :8080 when PORT is unset)")
	flag.Parse()

	logger := logging.NewFromEnv("webmacsd")

	cfg, err := runtime.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := runtime.New(cfg, logger)
	if err != nil {
		log.Fatalf("initialise runtime: %v", err)
	}

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = ":" + itoa(config.GetPort(8080))
	}

	handler := httpapi.NewRouter(rt.Router())
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		log.Fatalf("start runtime: %v", err)
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		log.Fatalf("listen %s: %v", listenAddr, err)
	}

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.WithContext(ctx).WithError(err).Error("http server stopped")
		}
	}()
	logger.WithContext(ctx).WithField("addr", listenAddr).Info("webmacsd listening")

	shutdown := middleware.NewGracefulShutdown(server, 10*time.Second)
	shutdown.OnShutdown(func() {
		if err := rt.Stop(); err != nil {
			logger.WithContext(ctx).WithError(err).Warn("runtime shutdown failed")
		}
	})
	shutdown.ListenForSignals()
	shutdown.Wait()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
