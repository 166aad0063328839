package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psinet-protocol/psinet/internal/ledger"
)

func init() {
	contextCmd := &cobra.Command{
		Use:   "context",
		Short: "Create, inspect, and verify context units",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and sign a context unit",
		Run:   runContextCreate,
	}
	createCmd.Flags().StringP("type", "t", "", "Context type (conversation, memory, skill, knowledge, document, embedding)")
	createCmd.Flags().StringP("content", "c", "", "Content as a JSON object")
	createCmd.Flags().StringP("previous", "p", "", "Previous unit ID")
	createCmd.MarkFlagRequired("type")
	createCmd.MarkFlagRequired("content")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a context unit",
		Args:  cobra.ExactArgs(1),
		Run:   runContextGet,
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Verify a unit's signature against the active identity",
		Args:  cobra.ExactArgs(1),
		Run:   runContextVerify,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Query stored context units",
		Run:   runContextList,
	}
	listCmd.Flags().StringP("type", "t", "", "Filter by context type")
	listCmd.Flags().StringP("owner", "o", "", "Filter by owner DID")
	listCmd.Flags().String("after", "", "Only units after this RFC3339 timestamp")
	listCmd.Flags().IntP("limit", "n", 10, "Maximum results")

	exportCmd := &cobra.Command{
		Use:   "export <id> <path>",
		Short: "Export a unit to a JSON file",
		Args:  cobra.ExactArgs(2),
		Run:   runContextExport,
	}

	importCmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import a unit from a JSON file",
		Args:  cobra.ExactArgs(1),
		Run:   runContextImport,
	}

	contextCmd.AddCommand(createCmd, getCmd, verifyCmd, listCmd, exportCmd, importCmd)
	RootCmd.AddCommand(contextCmd)
}

func mustLedger() *ledger.Ledger {
	m, err := openIdentity()
	if err != nil {
		exitErr("open identity storage", err)
	}
	led, err := openLedger(m)
	if err != nil {
		exitErr("open ledger", err)
	}
	return led
}

func runContextCreate(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	contentJSON, _ := cmd.Flags().GetString("content")
	prev, _ := cmd.Flags().GetString("previous")

	var content map[string]any
	if err := json.Unmarshal([]byte(contentJSON), &content); err != nil {
		exitErr("parse content", err)
	}
	var previous *string
	if prev != "" {
		previous = &prev
	}

	led := mustLedger()
	unit, err := led.CreateUnit(ledger.ContextType(typ), content, previous, nil)
	if err != nil {
		exitErr("create context", err)
	}
	b, _ := json.MarshalIndent(unit, "", "  ")
	fmt.Println(string(b))
}

func runContextGet(cmd *cobra.Command, args []string) {
	led := mustLedger()
	unit, err := led.LoadUnit(args[0])
	if err != nil {
		exitErr("get context", err)
	}
	b, _ := json.MarshalIndent(unit, "", "  ")
	fmt.Println(string(b))
}

func runContextVerify(cmd *cobra.Command, args []string) {
	m, err := openIdentity()
	if err != nil {
		exitErr("open identity storage", err)
	}
	led, err := openLedger(m)
	if err != nil {
		exitErr("open ledger", err)
	}

	unit, err := led.LoadUnit(args[0])
	if err != nil {
		exitErr("get context", err)
	}
	ident := m.Identity()
	if ident == nil {
		exitErr("verify", fmt.Errorf("no active identity; run 'psinet identity new'"))
	}

	valid := led.VerifyUnitSignature(unit, ident.PublicKey)
	b, _ := json.MarshalIndent(map[string]any{
		"context_id": unit.ID,
		"valid":      valid,
	}, "", "  ")
	fmt.Println(string(b))
}

func runContextList(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	owner, _ := cmd.Flags().GetString("owner")
	after, _ := cmd.Flags().GetString("after")
	limit, _ := cmd.Flags().GetInt("limit")

	led := mustLedger()
	units := led.QueryUnits(ledger.Query{Type: ledger.ContextType(typ), Owner: owner, After: after, Limit: limit})
	if units == nil {
		units = []*ledger.ContextUnit{}
	}
	b, _ := json.MarshalIndent(units, "", "  ")
	fmt.Println(string(b))
}

func runContextExport(cmd *cobra.Command, args []string) {
	led := mustLedger()
	if err := led.ExportUnit(args[0], args[1]); err != nil {
		exitErr("export context", err)
	}
	fmt.Printf("exported %s to %s\n", args[0], args[1])
}

func runContextImport(cmd *cobra.Command, args []string) {
	led := mustLedger()
	unit, err := led.ImportUnit(args[0])
	if err != nil {
		exitErr("import context", err)
	}
	b, _ := json.MarshalIndent(unit, "", "  ")
	fmt.Println(string(b))
}
