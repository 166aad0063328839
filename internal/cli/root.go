// Package cli implements the psinet CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/psinet-protocol/psinet/internal/capability"
	"github.com/psinet-protocol/psinet/internal/identity"
	"github.com/psinet-protocol/psinet/internal/ledger"
	"github.com/psinet-protocol/psinet/internal/payment"
)

var dataDir string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "psinet",
	Short: "Verifiable context units for AI agents",
	Long:  "Create, sign, chain, and monetize context units under a decentralized identity. Local-first, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", "", "Data directory (default: $PSINET_DATA_DIR or ~/.psinet)")
}

func getDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if env := os.Getenv("PSINET_DATA_DIR"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".psinet")
}

// openIdentity returns a manager with the active identity loaded, if one is
// recorded in the data directory.
func openIdentity() (*identity.Manager, error) {
	opts := []identity.Option{}
	if pass := os.Getenv("PSINET_PASSPHRASE"); pass != "" {
		opts = append(opts, identity.WithPassphrase(pass))
	}
	m, err := identity.NewManager(getDataDir(), opts...)
	if err != nil {
		return nil, err
	}
	if did, err := os.ReadFile(activeDIDPath()); err == nil && len(did) > 0 {
		if _, err := m.Load(string(did)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func activeDIDPath() string {
	return filepath.Join(getDataDir(), "active_did")
}

func openLedger(ids *identity.Manager) (*ledger.Ledger, error) {
	store, err := ledger.NewFileStore(getDataDir())
	if err != nil {
		return nil, err
	}
	led := ledger.New(ids, store)
	if err := led.Hydrate(); err != nil {
		return nil, err
	}
	return led, nil
}

func openGate(ids *identity.Manager) (*payment.Gate, error) {
	store, err := payment.NewSQLiteStore(filepath.Join(getDataDir(), "payments.db"))
	if err != nil {
		return nil, err
	}
	return payment.NewGate(ids.DID(), payment.WithStore(store))
}

func openCapabilities(ids *identity.Manager) *capability.Service {
	return capability.NewService(ids)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
