package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	identityCmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the local identity",
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a new identity and make it active",
		Run:   runIdentityNew,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active identity's DID document",
		Run:   runIdentityShow,
	}

	identityCmd.AddCommand(newCmd, showCmd)
	RootCmd.AddCommand(identityCmd)
}

func runIdentityNew(cmd *cobra.Command, args []string) {
	m, err := openIdentity()
	if err != nil {
		exitErr("open identity storage", err)
	}

	ident, err := m.Generate()
	if err != nil {
		exitErr("generate identity", err)
	}
	if err := os.WriteFile(activeDIDPath(), []byte(ident.DID), 0600); err != nil {
		exitErr("record active identity", err)
	}
	fmt.Println(ident.DID)
}

func runIdentityShow(cmd *cobra.Command, args []string) {
	m, err := openIdentity()
	if err != nil {
		exitErr("open identity storage", err)
	}

	doc := m.Document()
	if doc == nil {
		exitErr("show identity", fmt.Errorf("no active identity; run 'psinet identity new'"))
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	fmt.Println(string(b))
}
