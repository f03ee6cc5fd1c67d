package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identra.org/internal/audit"
	"identra.org/internal/authn"
	"identra.org/internal/catalog"
	"identra.org/internal/config"
	"identra.org/internal/directory"
	"identra.org/internal/httpapi"
	"identra.org/internal/membership"
	"identra.org/internal/obs"
	"identra.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.PGDSN == "" {
		log.Fatal("IDENTRA_PG_DSN is required")
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.NewLog(os.Stdout)

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	hasher := authn.NewBcryptHasher(0)
	users, err := directory.NewService(store, hasher, logger)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}
	groups, err := catalog.NewService(store, logger)
	if err != nil {
		log.Fatalf("catalog service: %v", err)
	}
	members, err := membership.NewService(store, users, groups, logger)
	if err != nil {
		log.Fatalf("membership service: %v", err)
	}
	users.BindMemberships(members)
	groups.BindMemberships(members)

	issuer, err := authn.NewIssuer(cfg.AccessSecret, cfg.RefreshSecret,
		authn.WithAccessTTL(cfg.AccessTTL),
		authn.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	auth, err := authn.NewService(users, issuer, hasher, logger)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Users:         users,
		Groups:        groups,
		Members:       members,
		Auth:          auth,
		Audit:         audit.NewRecorder(logger),
		Log:           logger,
		ReadyProbe:    httpapi.ReadyProbe{DB: store.DB()},
		Version:       version,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting identra-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
