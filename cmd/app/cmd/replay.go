package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"amm_go/internal/app"
	"amm_go/internal/custody"
	"amm_go/internal/domain"
	"amm_go/internal/infra/storage"
)

var showBalances bool

type replayReport struct {
	NextSeq  uint64            `json:"next_seq"`
	Rejected int               `json:"rejected"`
	Pools    []domain.PoolView `json:"pools"`
	Balances []custody.Balance `json:"balances,omitempty"`
	Drift    []string          `json:"drift,omitempty"`
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild state from the command log and print it",
	Long: `Replay every logged command into a scratch engine and print the resulting
pools as JSON. Differences against the stored pool tables are listed under
"drift". Nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := storage.NewStorage(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		cmds, err := store.LoadCommands(ctx)
		if err != nil {
			return err
		}
		bank := custody.NewBank(app.CustodyAccount)
		rec, err := app.Recover(ctx, cmds, bank, cfg.Engine.Fee)
		if err != nil {
			return err
		}
		pools, shares, err := store.LoadState(ctx)
		if err != nil {
			return err
		}

		report := replayReport{
			NextSeq:  rec.NextSeq,
			Rejected: rec.Rejected,
			Pools:    make([]domain.PoolView, 0, len(rec.Pools)),
			Drift:    app.Drift(rec, pools, shares),
		}
		for i := range rec.Pools {
			report.Pools = append(report.Pools, rec.Pools[i].View())
		}
		if showBalances {
			report.Balances = bank.Snapshot()
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	replayCmd.Flags().BoolVar(&showBalances, "balances", false, "include custody balances")
	rootCmd.AddCommand(replayCmd)
}
