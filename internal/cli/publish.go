package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psinet-protocol/psinet/internal/publish"
)

func init() {
	publishCmd := &cobra.Command{
		Use:   "publish <unit-id>",
		Short: "Replicate a context unit to IPFS and/or Nostr relays",
		Args:  cobra.ExactArgs(1),
		Run:   runPublish,
	}
	publishCmd.Flags().String("ipfs-api", "", "IPFS HTTP API URL (default: $PSINET_IPFS_API)")
	publishCmd.Flags().StringSlice("relay", nil, "Nostr relay URL (repeatable)")

	RootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) {
	ipfsAPI, _ := cmd.Flags().GetString("ipfs-api")
	if ipfsAPI == "" {
		ipfsAPI = os.Getenv("PSINET_IPFS_API")
	}
	relays, _ := cmd.Flags().GetStringSlice("relay")

	var publishers []publish.Publisher
	if ipfsAPI != "" {
		publishers = append(publishers, publish.NewIPFSPublisher(ipfsAPI))
	}
	if len(relays) > 0 {
		p, err := publish.NewNostrPublisher(relays, os.Getenv("PSINET_NOSTR_KEY"))
		if err != nil {
			exitErr("init nostr publisher", err)
		}
		publishers = append(publishers, p)
	}
	if len(publishers) == 0 {
		exitErr("publish", fmt.Errorf("no targets; pass --ipfs-api or --relay"))
	}

	led := mustLedger()
	unit, err := led.LoadUnit(args[0])
	if err != nil {
		exitErr("load context", err)
	}

	refs := map[string]string{}
	for _, p := range publishers {
		ref, err := p.Publish(cmd.Context(), unit)
		if err != nil {
			exitErr(p.Name()+" publish", err)
		}
		if err := led.SetStorageRef(unit.ID, p.Name(), ref); err != nil {
			exitErr("record storage ref", err)
		}
		refs[p.Name()] = ref
	}

	b, _ := json.MarshalIndent(refs, "", "  ")
	fmt.Println(string(b))
}
