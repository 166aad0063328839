package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/psinet-protocol/psinet/internal/payment"
)

func init() {
	payCmd := &cobra.Command{
		Use:   "pay",
		Short: "Manage payment requirements, channels, and receipts",
	}

	requireCmd := &cobra.Command{
		Use:   "require <context-id> <amount>",
		Short: "Set the payment requirement for a context",
		Args:  cobra.ExactArgs(2),
		Run:   runPayRequire,
	}
	requireCmd.Flags().StringP("model", "m", "pay_per_access", "Pricing model")
	requireCmd.Flags().StringP("currency", "c", "bitcoin", "Payment method")
	requireCmd.Flags().StringP("address", "a", "", "Recipient wallet address")
	requireCmd.Flags().Duration("ttl", 0, "Requirement lifetime (0 = never lapses)")
	requireCmd.Flags().String("description", "", "Human-readable description")

	channelCmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage micropayment channels",
	}

	channelOpenCmd := &cobra.Command{
		Use:   "open <payer-did> <capacity>",
		Short: "Open a channel toward this node",
		Args:  cobra.ExactArgs(2),
		Run:   runChannelOpen,
	}
	channelOpenCmd.Flags().StringP("currency", "c", "lightning", "Payment method")
	channelOpenCmd.Flags().Duration("ttl", 24*time.Hour, "Channel lifetime")

	channelCloseCmd := &cobra.Command{
		Use:   "close <channel-id>",
		Short: "Close a channel",
		Args:  cobra.ExactArgs(1),
		Run:   runChannelClose,
	}

	receiptCmd := &cobra.Command{
		Use:   "receipt <context-id> <payer-did> <tx-hash>",
		Short: "Record and confirm a payment receipt",
		Args:  cobra.ExactArgs(3),
		Run:   runReceipt,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print payment statistics",
		Run:   runPayStats,
	}

	channelCmd.AddCommand(channelOpenCmd, channelCloseCmd)
	payCmd.AddCommand(requireCmd, channelCmd, receiptCmd, statsCmd)
	RootCmd.AddCommand(payCmd)
}

func mustGate() *payment.Gate {
	m, err := openIdentity()
	if err != nil {
		exitErr("open identity storage", err)
	}
	gate, err := openGate(m)
	if err != nil {
		exitErr("open payment gate", err)
	}
	return gate
}

func runPayRequire(cmd *cobra.Command, args []string) {
	model, _ := cmd.Flags().GetString("model")
	currency, _ := cmd.Flags().GetString("currency")
	address, _ := cmd.Flags().GetString("address")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	description, _ := cmd.Flags().GetString("description")

	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		exitErr("parse amount", err)
	}
	var ttlPtr *time.Duration
	if ttl > 0 {
		ttlPtr = &ttl
	}

	gate := mustGate()
	req, err := gate.SetRequirement(args[0], payment.PricingModel(model), amount, payment.Method(currency), address, ttlPtr, description)
	if err != nil {
		exitErr("set requirement", err)
	}
	b, _ := json.MarshalIndent(req, "", "  ")
	fmt.Println(string(b))
}

func runChannelOpen(cmd *cobra.Command, args []string) {
	currency, _ := cmd.Flags().GetString("currency")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	capacity, err := decimal.NewFromString(args[1])
	if err != nil {
		exitErr("parse capacity", err)
	}

	gate := mustGate()
	ch, err := gate.OpenChannel(args[0], capacity, payment.Method(currency), ttl)
	if err != nil {
		exitErr("open channel", err)
	}
	b, _ := json.MarshalIndent(ch, "", "  ")
	fmt.Println(string(b))
}

func runChannelClose(cmd *cobra.Command, args []string) {
	gate := mustGate()
	if err := gate.CloseChannel(args[0]); err != nil {
		exitErr("close channel", err)
	}
	fmt.Printf("channel %s closed\n", args[0])
}

func runReceipt(cmd *cobra.Command, args []string) {
	gate := mustGate()
	receipt, err := gate.RecordReceipt(args[0], args[1], args[2])
	if err != nil {
		exitErr("record receipt", err)
	}
	confirmed, err := gate.ConfirmReceipt(receipt.ReceiptID)
	if err != nil {
		exitErr("confirm receipt", err)
	}

	updated, _ := gate.Receipt(receipt.ReceiptID)
	b, _ := json.MarshalIndent(map[string]any{
		"receipt":   updated,
		"confirmed": confirmed,
	}, "", "  ")
	fmt.Println(string(b))
}

func runPayStats(cmd *cobra.Command, args []string) {
	gate := mustGate()
	b, _ := json.MarshalIndent(gate.Stats(), "", "  ")
	fmt.Println(string(b))
}
