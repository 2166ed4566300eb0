package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/piececount/puzzledex/internal/gate"
	"github.com/piececount/puzzledex/internal/model"
)

var priceForce bool

var priceCmd = &cobra.Command{
	Use:   "price <puzzle-id>",
	Short: "Look up resale prices for a puzzle",
	Long:  "Serves from the 7-day cache when possible; otherwise runs a paid estimator lookup, limited to 2 per puzzle per rolling week.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Gate.RequestPrice(cmd.Context(), cliUser, args[0], priceForce)
		if err != nil {
			var rateLimited *gate.RateLimitedError
			if errors.As(err, &rateLimited) {
				fmt.Printf("weekly limit reached (%d/%d), next lookup available %s\n",
					rateLimited.WeekCount, rateLimited.Limit,
					rateLimited.NextAvailable.Local().Format("Mon Jan 2 15:04"))
				return nil
			}
			if errors.Is(err, gate.ErrSearchNotSaved) && result != nil {
				fmt.Println("warning: lookup succeeded but was not saved (weekly window filled); not counted against the limit")
				printPrices(result)
				return nil
			}
			return err
		}

		printPrices(result)
		return nil
	},
}

func printPrices(result *gate.Result) {
	if result.Cached {
		fmt.Printf("cached result from %s (valid until %s)\n",
			result.SearchDate.Local().Format("Mon Jan 2 15:04"),
			result.CacheValidUntil.Local().Format("Mon Jan 2 15:04"))
	}
	for _, p := range result.Prices {
		fmt.Printf("%-16s %s %7.2f  (%.2f - %.2f)  %s\n",
			p.Country, p.Currency, p.AvgPrice, p.MinPrice, p.MaxPrice, p.AvailabilityNotes)
	}
	fmt.Printf("recommended: %.2f\n", model.RecommendedPrice(result.Prices))
	fmt.Printf("searches this week: %d, remaining: %d\n", result.WeekCount, result.Remaining)
}

func init() {
	priceCmd.Flags().BoolVar(&priceForce, "force", false, "skip the cache (still subject to the weekly limit)")
	rootCmd.AddCommand(priceCmd)
}
