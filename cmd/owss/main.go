package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/owss/owss/internal/config"
	"github.com/owss/owss/internal/resource"
	"github.com/owss/owss/internal/server"
	"github.com/owss/owss/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run wires and serves the service until a shutdown signal has been fully
// handled. Deferred cleanup runs before it returns.
func run() error {
	configPath := os.Getenv("OWSS_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var index resource.ShareIndex
	if p := cfg.StoragePath(cfg.Storage.IndexPath); p != "" {
		db, err := storage.NewDB(p)
		if err != nil {
			return fmt.Errorf("open share index: %w", err)
		}
		defer db.Close()
		index = db
	}

	engine, err := resource.New(resource.Options{
		Root:                 cfg.Storage.RootPath,
		ConfigDir:            cfg.Storage.ConfigPath,
		DataDir:              cfg.Storage.DataPath,
		ShareDir:             cfg.StoragePath(cfg.Storage.SharePath),
		MaxResource:          cfg.Storage.MaxResource,
		AutoCleanOldResource: cfg.Storage.AutoCleanOldResource,
		Index:                index,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	srv, err := server.New(engine, server.Options{
		Name:                  cfg.Server.Name,
		Private:               cfg.Server.DeployType == config.DeployPrivate,
		EnableAccessWhitelist: cfg.Server.EnableAccessWhitelist,
		AccessWhitelist:       cfg.Server.AccessWhitelist,
		CreateRateLimit:       cfg.Server.CreateRateLimit,
		MaxUploadSize:         cfg.Server.MaxUploadSize,
		TmpDir:                cfg.StoragePath(cfg.Storage.TmpPath),
		StagingTTL:            cfg.StagingTTL(),
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if cfg.FirstTime {
		id, err := engine.Create(resource.CreateOptions{})
		if err != nil {
			return fmt.Errorf("create first resource: %w", err)
		}
		log.Printf("[init] config written to %s", configPath)
		log.Printf("[init] your authorization code: %s", id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.StartWorkers(ctx)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var tlsServer *http.Server
	if cfg.Server.AutoTLS {
		tlsServer = startAutoTLS(cfg, srv)
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	fmt.Printf("%s %s running on http://localhost:%s\n", cfg.Server.Name, cfg.Server.Version, cfg.Server.Port)
	fmt.Printf("  deploy type: %s\n", cfg.Server.DeployType)
	fmt.Printf("  storage root: %s\n", engine.Layout().Root)
	fmt.Printf("  auto clean: %v (max %d files per resource)\n", cfg.Storage.AutoCleanOldResource, cfg.Storage.MaxResource)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return serve(httpServer, ln, sigCh, cancel, tlsServer)
}

// serve runs httpServer on ln until stop fires. It then calls onStop, shuts
// down the extra servers and httpServer, and returns only after in-flight
// requests have drained or the shutdown timeout expired.
func serve(httpServer *http.Server, ln net.Listener, stop <-chan os.Signal, onStop func(), extra ...*http.Server) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-stop
		log.Println("Shutting down...")
		onStop()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range extra {
			if s == nil {
				continue
			}
			if err := s.Shutdown(ctx); err != nil {
				log.Printf("[tls] shutdown: %v", err)
			}
		}
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("[http] shutdown: %v", err)
		}
	}()

	if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	<-drained
	return nil
}

// startAutoTLS serves handler on :443 with Let's Encrypt certificates for
// cfg.Server.Host. The ACME HTTP-01 challenge listener runs on :80.
func startAutoTLS(cfg *config.Config, handler http.Handler) *http.Server {
	mgr := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(filepath.Join(cfg.Storage.RootPath, "_certcache")),
		HostPolicy: autocert.HostWhitelist(cfg.Server.Host),
		Email:      cfg.Server.AcmeEmail,
	}
	go func() {
		if err := http.ListenAndServe(":80", mgr.HTTPHandler(nil)); err != nil {
			log.Printf("[tls] acme challenge listener: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         mgr.TLSConfig(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[tls] server error: %v", err)
		}
	}()
	log.Printf("[tls] AutoTLS enabled for host %s", cfg.Server.Host)
	return srv
}
