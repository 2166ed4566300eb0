package estimator

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/piececount/puzzledex/internal/model"
)

// validatePrices checks the structural contract of an estimator response:
// non-empty list, all fields present, known ISO-4217 currency, non-negative
// prices. A min/avg/max ordering violation is tolerated (the upstream does
// not guarantee it) but logged.
func validatePrices(prices []model.PriceEstimate) error {
	if len(prices) == 0 {
		return &ContractError{Reason: "empty price list"}
	}
	for i, p := range prices {
		if p.Country == "" || p.CountryCode == "" {
			return &ContractError{Reason: fmt.Sprintf("entry %d: missing country", i)}
		}
		if len(p.CountryCode) != 2 {
			return &ContractError{Reason: fmt.Sprintf("entry %d: country code %q is not ISO-2", i, p.CountryCode)}
		}
		if _, err := currency.ParseISO(p.Currency); err != nil {
			return &ContractError{Reason: fmt.Sprintf("entry %d: currency %q is not ISO-4217", i, p.Currency)}
		}
		if p.AvgPrice < 0 || p.MinPrice < 0 || p.MaxPrice < 0 {
			return &ContractError{Reason: fmt.Sprintf("entry %d: negative price", i)}
		}
		if p.MinPrice > p.AvgPrice || p.AvgPrice > p.MaxPrice {
			zap.L().Warn("estimator price range out of order",
				zap.String("country_code", p.CountryCode),
				zap.Float64("min", p.MinPrice),
				zap.Float64("avg", p.AvgPrice),
				zap.Float64("max", p.MaxPrice),
			)
		}
	}
	return nil
}
