package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/psinet-protocol/psinet/internal/capability"
	"github.com/psinet-protocol/psinet/internal/identity"
	"github.com/psinet-protocol/psinet/internal/ledger"
	"github.com/psinet-protocol/psinet/internal/payment"
	"github.com/psinet-protocol/psinet/internal/server"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dataDir := os.Getenv("PSINET_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	opts := []identity.Option{}
	if pass := os.Getenv("PSINET_PASSPHRASE"); pass != "" {
		opts = append(opts, identity.WithPassphrase(pass))
	}
	ids, err := identity.NewManager(dataDir, opts...)
	if err != nil {
		log.Fatalf("Failed to init identity storage: %v", err)
	}

	// Load the configured identity, or generate one on first run.
	if did := os.Getenv("PSINET_DID"); did != "" {
		if _, err := ids.Load(did); err != nil {
			log.Fatalf("Failed to load identity %s: %v", did, err)
		}
	} else {
		ident, err := ids.Generate()
		if err != nil {
			log.Fatalf("Failed to generate identity: %v", err)
		}
		log.Printf("Generated node identity %s", ident.DID)
	}

	store, err := ledger.NewFileStore(dataDir)
	if err != nil {
		log.Fatalf("Failed to init ledger storage: %v", err)
	}
	led := ledger.New(ids, store)
	if err := led.Hydrate(); err != nil {
		log.Fatalf("Failed to hydrate ledger: %v", err)
	}

	payStore, err := payment.NewSQLiteStore(filepath.Join(dataDir, "payments.db"))
	if err != nil {
		log.Fatalf("Failed to open payment database: %v", err)
	}
	defer payStore.Close()

	gateOpts := []payment.GateOption{payment.WithStore(payStore)}
	for _, w := range []struct {
		method payment.Method
		env    string
	}{
		{payment.Bitcoin, "PSINET_WALLET_BITCOIN"},
		{payment.Ethereum, "PSINET_WALLET_ETHEREUM"},
		{payment.Lightning, "PSINET_WALLET_LIGHTNING"},
	} {
		if addr := strings.TrimSpace(os.Getenv(w.env)); addr != "" {
			gateOpts = append(gateOpts, payment.WithWallet(w.method, addr))
		}
	}
	gate, err := payment.NewGate(ids.DID(), gateOpts...)
	if err != nil {
		log.Fatalf("Failed to init payment gate: %v", err)
	}

	srv := server.New(ids, led, capability.NewService(ids), gate)
	httpSrv := &http.Server{Addr: ":" + port, Handler: srv}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		httpSrv.Close()
	}()

	fmt.Printf("PsiNet node %s running on http://localhost:%s\n", ids.DID(), port)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
