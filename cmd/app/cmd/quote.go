package cmd

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"amm_go/internal/pricing"
)

var quoteCmd = &cobra.Command{
	Use:   "quote [amount-in] [reserve-in] [reserve-out]",
	Short: "Quote a swap against the given reserves",
	Long: `Compute the constant-product output for amount-in against the given
reserves using the configured fee. No database is opened.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var vals [3]*uint256.Int
		for i, arg := range args {
			if vals[i], err = uint256.FromDecimal(arg); err != nil {
				return fmt.Errorf("argument %d (%q): %w", i+1, arg, err)
			}
		}
		amountIn, reserveIn, reserveOut := vals[0], vals[1], vals[2]

		out, err := pricing.QuoteOutput(amountIn, reserveIn, reserveOut, cfg.Engine.Fee)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Amount Out: %s\n", out.Dec())
		fmt.Fprintf(w, "Spot Price: %s\n", pricing.SpotPrice(reserveIn, reserveOut, 18).String())
		fmt.Fprintf(w, "Fee:        %d/%d\n", cfg.Engine.Fee.Num, cfg.Engine.Fee.Den)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}
