package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/piececount/puzzledex/internal/model"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <puzzle-id>",
	Short: "Show the price-search history of a puzzle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		// Ownership check before touching history.
		if _, err := st.GetPuzzle(cmd.Context(), cliUser, args[0]); err != nil {
			return err
		}

		searches, err := st.ListSearches(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		if len(searches) == 0 {
			fmt.Println("no searches")
			return nil
		}

		for _, s := range searches {
			fmt.Printf("%s  %s  recommended %.2f  (%d markets, %s)\n",
				s.SearchDate.Local().Format("2006-01-02 15:04"),
				s.ID,
				model.RecommendedPrice(s.Prices),
				len(s.Prices),
				s.EstimatorVersion)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max searches to show")
	rootCmd.AddCommand(historyCmd)
}
