package estimator

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an expert on the European market for jigsaw puzzles and board games.
Analyze the provided puzzle and give realistic resale price estimates for the main European markets.
Consider: brand reputation, piece count, condition, and the puzzle's typical rarity.`

// priceToolName is the tool the model is forced to call so the response
// arrives as structured data instead of prose.
const priceToolName = "return_puzzle_prices"

func buildUserPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Analyze this puzzle and provide price estimates for European markets:\n\n")
	b.WriteString("Puzzle details:\n")
	fmt.Fprintf(&b, "- Title: %s\n", req.Title)
	author := req.Author
	if author == "" {
		author = "Not specified"
	}
	fmt.Fprintf(&b, "- Author/Brand: %s\n", author)
	fmt.Fprintf(&b, "- Piece count: %d\n", req.PiecesCount)
	fmt.Fprintf(&b, "- Condition: %s\n", req.Condition)
	fmt.Fprintf(&b, "- Has box: %s\n", yesNo(req.HasBox))
	fmt.Fprintf(&b, "- Complete: %s\n", yesNo(req.Complete))
	if req.Notes != "" {
		fmt.Fprintf(&b, "- Additional notes: %s\n", req.Notes)
	}
	b.WriteString("\nProvide estimated prices for Italy, Germany, France and the United Kingdom.\n")
	b.WriteString("For each country give: average price, range (min-max), availability (Common/Medium/Rare).")
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// priceToolProperties is the JSON-schema property map of the forced tool.
func priceToolProperties() map[string]any {
	return map[string]any{
		"prices": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"country":            map[string]any{"type": "string", "description": "Country display name (e.g. Italy)"},
					"country_code":       map[string]any{"type": "string", "description": "ISO country code (e.g. IT, DE, FR, GB)"},
					"currency":           map[string]any{"type": "string", "description": "ISO-4217 currency code (EUR or GBP)"},
					"avg_price":          map[string]any{"type": "number", "description": "Estimated average price"},
					"min_price":          map[string]any{"type": "number", "description": "Low end of the range"},
					"max_price":          map[string]any{"type": "number", "description": "High end of the range"},
					"availability_notes": map[string]any{"type": "string", "description": "Availability (Common/Medium/Rare)"},
				},
				"required": []string{
					"country", "country_code", "currency",
					"avg_price", "min_price", "max_price", "availability_notes",
				},
			},
		},
	}
}
