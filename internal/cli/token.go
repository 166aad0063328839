package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/psinet-protocol/psinet/internal/capability"
)

func init() {
	grantCmd := &cobra.Command{
		Use:   "grant <capability> <grantee-did>",
		Short: "Issue a signed capability token",
		Args:  cobra.ExactArgs(2),
		Run:   runGrant,
	}
	grantCmd.Flags().StringP("context", "c", "", "Bind the token to one context ID")
	grantCmd.Flags().DurationP("ttl", "e", time.Hour, "Token lifetime")

	checkCmd := &cobra.Command{
		Use:   "check <token-file> <capability>",
		Short: "Evaluate a token against a required capability",
		Args:  cobra.ExactArgs(2),
		Run:   runCheck,
	}
	checkCmd.Flags().StringP("context", "c", "", "Context ID the access targets")

	RootCmd.AddCommand(grantCmd, checkCmd)
}

func runGrant(cmd *cobra.Command, args []string) {
	contextID, _ := cmd.Flags().GetString("context")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	var ctxPtr *string
	if contextID != "" {
		ctxPtr = &contextID
	}

	m, err := openIdentity()
	if err != nil {
		exitErr("open identity storage", err)
	}
	caps := openCapabilities(m)

	token, err := caps.Grant(capability.Capability(args[0]), args[1], ctxPtr, ttl)
	if err != nil {
		exitErr("grant token", err)
	}
	b, _ := json.MarshalIndent(token, "", "  ")
	fmt.Println(string(b))
}

func runCheck(cmd *cobra.Command, args []string) {
	contextID, _ := cmd.Flags().GetString("context")

	data, err := os.ReadFile(args[0])
	if err != nil {
		exitErr("read token", err)
	}
	var token capability.AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		exitErr("parse token", err)
	}

	var ctxPtr *string
	if contextID != "" {
		ctxPtr = &contextID
	}

	m, err := openIdentity()
	if err != nil {
		exitErr("open identity storage", err)
	}
	caps := openCapabilities(m)

	allowed := caps.Check(&token, capability.Capability(args[1]), ctxPtr)
	b, _ := json.MarshalIndent(map[string]bool{"allowed": allowed}, "", "  ")
	fmt.Println(string(b))
	if !allowed {
		os.Exit(1)
	}
}
