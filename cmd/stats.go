package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/piececount/puzzledex/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}

		summary, err := stats.NewCollector(st).Collect(cmd.Context(), cliUser)
		if err != nil {
			return err
		}

		fmt.Printf("puzzles: %d (%d pieces total)\n", summary.TotalPuzzles, summary.TotalPieces)
		fmt.Printf("complete: %d   assembled: %d   listed: %d\n",
			summary.Complete, summary.Assembled, summary.ListedForSale)
		fmt.Printf("purchase value: %.2f   listed value: %.2f   sold: %.2f\n",
			summary.PurchaseValue, summary.ListedValue, summary.SoldValue)
		if summary.WithEstimates > 0 {
			fmt.Printf("estimated value (%d puzzles): %.2f   potential profit: %.2f\n",
				summary.WithEstimates, summary.EstimatedValue, summary.PotentialProfit)
		}
		if len(summary.ByCountry) > 0 {
			fmt.Println("markets:")
			for _, c := range summary.ByCountry {
				fmt.Printf("  %-3s %-16s %d puzzles, avg %.2f\n", c.CountryCode, c.Country, c.Puzzles, c.AvgPrice)
			}
		}
		for _, u := range summary.Underpriced {
			fmt.Printf("underpriced: %s asking %.2f, recommended %.2f\n", u.Title, u.AskingPrice, u.Recommended)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
