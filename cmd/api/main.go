package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"evote-backend/api"
	"evote-backend/config"
	"evote-backend/encryption"
	"evote-backend/kyc"
	"evote-backend/ledger"
	"evote-backend/registry"
	"evote-backend/replay"
	"evote-backend/service"
	"evote-backend/storage"
)

func main() {
	cfg := config.FromEnv()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	keys, err := encryption.LoadOrGenerateKeys(cfg.StorageDir)
	if err != nil {
		log.Error("failed to load key material", "error", err)
		os.Exit(1)
	}
	cryptoService, err := encryption.NewCryptoService(keys)
	if err != nil {
		log.Error("failed to initialize crypto service", "error", err)
		os.Exit(1)
	}

	chainStore, err := storage.NewChainStore(cfg.StorageDir)
	if err != nil {
		log.Error("failed to open chain store", "error", err)
		os.Exit(1)
	}
	replayStore, err := storage.NewReplayStore(cfg.StorageDir)
	if err != nil {
		log.Error("failed to open replay store", "error", err)
		os.Exit(1)
	}

	voteLedger, err := ledger.New(chainStore, cryptoService.PII, log)
	if err != nil {
		log.Error("failed to load ledger", "error", err)
		os.Exit(1)
	}
	if valid, firstBad := voteLedger.VerifyIntegrity(); !valid {
		// Startup verification: report, never auto-repair.
		log.Error("ledger failed integrity verification at startup", "first_bad_index", firstBad)
	} else {
		log.Info("ledger verified at startup", "blocks", voteLedger.Length())
	}

	guard := replay.NewGuard(replayStore, cfg.SkewWindow, log)

	kycStore, err := kyc.NewCredentialStore(filepath.Join(cfg.StorageDir, "kyc_storage"), cryptoService.PII, log)
	if err != nil {
		log.Error("failed to open kyc store", "error", err)
		os.Exit(1)
	}

	voterRegistry, err := registry.NewFileRegistry(filepath.Join(cfg.StorageDir, "voter_registry.json"))
	if err != nil {
		log.Error("failed to load voter registry", "error", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	metrics := service.NewMetrics(promRegistry)

	otpService := service.NewOTPService(&service.LogNotifier{Log: log}, log)
	auth := service.NewSessionAuthority(voterRegistry, otpService, cryptoService.Session, log)
	window := service.NewElectionWindow(time.Duration(cfg.ElectionHours) * time.Hour)

	coordinator := service.NewVoteCoordinator(service.VoteCoordinatorConfig{
		Auth:       auth,
		Guard:      guard,
		KYC:        kycStore,
		Ledger:     voteLedger,
		Registry:   voterRegistry,
		Crypto:     cryptoService,
		Window:     window,
		Metrics:    metrics,
		AdminToken: cfg.AdminToken,
	}, log)

	server := api.NewServer(auth, coordinator, kycStore, voterRegistry, metrics, promRegistry, log)

	srv := &http.Server{Addr: cfg.Addr, Handler: server.Router()}

	// Periodic sweep reclaims expired sessions and OTP state; correctness does
	// not depend on it since expiry is also checked lazily on read.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessions, pending := auth.SweepExpired()
				expired := otpService.SweepExpired()
				if sessions+pending+expired > 0 {
					log.Info("swept expired state", "sessions", sessions, "pending", pending, "otps", expired)
				}
			case <-sweepDone:
				return
			}
		}
	}()

	go func() {
		log.Info("starting evote backend", "addr", cfg.Addr, "authority", cryptoService.AuthorityAddress())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	close(sweepDone)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
