package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/yurifrl/bursar/pkg/cards"
	"github.com/yurifrl/bursar/pkg/config"
	"github.com/yurifrl/bursar/pkg/payer"
	"github.com/yurifrl/bursar/pkg/plan"
	"github.com/yurifrl/bursar/pkg/portal"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bursar",
	Short: "Pay down a tuition balance with gift cards",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the payment loop against the portal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			Prefix:          "bursar",
		})

		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		session, err := portal.Authenticate(ctx, cfg, logger)
		if err != nil {
			return err
		}

		forceManual, _ := cmd.Flags().GetBool("manual")

		p := payer.New(cfg, logger, session)
		return p.Run(ctx, payer.Options{
			ForceManual: forceManual,
			ManualIn:    os.Stdin,
			ManualOut:   os.Stdout,
		})
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <batch-file>",
	Short: "Preview a card batch without submitting payments (dry-run)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "bursar"})

		feeStr, _ := cmd.Flags().GetString("fee")
		fee, err := decimal.NewFromString(feeStr)
		if err != nil {
			return fmt.Errorf("invalid --fee %q: %w", feeStr, err)
		}

		amountStr, _ := cmd.Flags().GetString("amount")
		if amountStr == "" {
			return fmt.Errorf("--amount is required for a plan preview")
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("invalid --amount %q: %w", amountStr, err)
		}

		var target *decimal.Decimal
		if targetStr, _ := cmd.Flags().GetString("target"); targetStr != "" {
			value, err := decimal.NewFromString(targetStr)
			if err != nil {
				return fmt.Errorf("invalid --target %q: %w", targetStr, err)
			}
			target = &value
		}

		batch, err := cards.LoadFile(args[0], "", logger)
		if err != nil {
			return err
		}

		preview := plan.Build(batch, amount, fee, target)

		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			pp.Println(preview)
		}

		if output, _ := cmd.Flags().GetString("output"); output == "yaml" {
			data, err := preview.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		}

		fmt.Print(preview.Render())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is env only)")

	runCmd.Flags().String("cards", "", "Card batch file (overrides CARDS_CSV)")
	runCmd.Flags().String("amount", "", "Card value in dollars (overrides AMOUNT_PER_CARD)")
	runCmd.Flags().String("target", "", "Total payment target (overrides TARGET_PAYMENT)")
	runCmd.Flags().Bool("manual", false, "Skip the batch file and enter cards interactively")

	planCmd.Flags().String("fee", "2.85", "Assumed transaction fee percent")
	planCmd.Flags().String("amount", "", "Card value in dollars")
	planCmd.Flags().String("target", "", "Total payment target")
	planCmd.Flags().StringP("output", "o", "text", "Output format (text or yaml)")
	planCmd.Flags().Bool("debug", false, "Dump the computed plan")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
