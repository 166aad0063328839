package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	chainCmd := &cobra.Command{
		Use:   "chain",
		Short: "Create and verify context chains",
	}

	createCmd := &cobra.Command{
		Use:   "create <unit-id>...",
		Short: "Record an ordered sequence of units as a chain",
		Args:  cobra.MinimumNArgs(1),
		Run:   runChainCreate,
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <chain-id>",
		Short: "Walk a chain and report the first break, if any",
		Args:  cobra.ExactArgs(1),
		Run:   runChainVerify,
	}

	chainCmd.AddCommand(createCmd, verifyCmd)
	RootCmd.AddCommand(chainCmd)
}

func runChainCreate(cmd *cobra.Command, args []string) {
	led := mustLedger()
	chain, err := led.CreateChain(args)
	if err != nil {
		exitErr("create chain", err)
	}
	b, _ := json.MarshalIndent(chain, "", "  ")
	fmt.Println(string(b))
}

func runChainVerify(cmd *cobra.Command, args []string) {
	led := mustLedger()
	res := led.VerifyChain(args[0])
	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
