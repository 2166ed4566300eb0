package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/piececount/puzzledex/internal/model"
	"github.com/piececount/puzzledex/internal/store"
)

var puzzleCmd = &cobra.Command{
	Use:   "puzzle",
	Short: "Manage the puzzle catalog",
}

var puzzleAddFlags struct {
	title          string
	author         string
	pieces         int
	condition      string
	complete       bool
	assembled      bool
	hasBox         bool
	listed         bool
	salePlatform   string
	purchasePrice  float64
	price          float64
	productionYear int
	purchaseYear   int
	notes          string
}

var puzzleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a puzzle to the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if puzzleAddFlags.title == "" {
			return eris.New("--title is required")
		}
		condition := model.Condition(puzzleAddFlags.condition)
		if !condition.Valid() {
			return eris.Errorf("unknown condition %q (valid: %v)", puzzleAddFlags.condition, model.AllConditions())
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}

		now := time.Now().UTC()
		p := &model.Puzzle{
			ID:             uuid.New().String(),
			UserID:         cliUser,
			Title:          puzzleAddFlags.title,
			Author:         puzzleAddFlags.author,
			PiecesCount:    puzzleAddFlags.pieces,
			SalePlatform:   puzzleAddFlags.salePlatform,
			ListedForSale:  puzzleAddFlags.listed,
			Complete:       puzzleAddFlags.complete,
			Assembled:      puzzleAddFlags.assembled,
			HasBox:         puzzleAddFlags.hasBox,
			Condition:      condition,
			PurchasePrice:  puzzleAddFlags.purchasePrice,
			Price:          puzzleAddFlags.price,
			ProductionYear: puzzleAddFlags.productionYear,
			PurchaseYear:   puzzleAddFlags.purchaseYear,
			Notes:          puzzleAddFlags.notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := st.CreatePuzzle(cmd.Context(), p); err != nil {
			return err
		}

		fmt.Printf("added %s (%s)\n", p.Title, p.ID)
		return nil
	},
}

var puzzleListFlags struct {
	search   string
	author   string
	listed   bool
	sortBy   string
	sortDesc bool
	limit    int
}

var puzzleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List puzzles",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}

		filter := store.PuzzleFilter{
			Search:   puzzleListFlags.search,
			Author:   puzzleListFlags.author,
			SortBy:   model.SortField(puzzleListFlags.sortBy),
			SortDesc: puzzleListFlags.sortDesc,
			Limit:    puzzleListFlags.limit,
		}
		if cmd.Flags().Changed("listed") {
			filter.ListedForSale = &puzzleListFlags.listed
		}

		puzzles, err := st.ListPuzzles(cmd.Context(), cliUser, filter)
		if err != nil {
			return err
		}

		if len(puzzles) == 0 {
			fmt.Println("no puzzles")
			return nil
		}
		for _, p := range puzzles {
			fmt.Printf("%s  %-40s  %5d pcs  %-8s  %s\n",
				p.ID, truncate(p.Title, 40), p.PiecesCount, p.Condition, p.Author)
		}
		fmt.Printf("%d puzzles\n", len(puzzles))
		return nil
	},
}

var puzzleShowCmd = &cobra.Command{
	Use:   "show <puzzle-id>",
	Short: "Show one puzzle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetPuzzle(cmd.Context(), cliUser, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Title:       %s\n", p.Title)
		fmt.Printf("Author:      %s\n", p.Author)
		fmt.Printf("Pieces:      %d\n", p.PiecesCount)
		fmt.Printf("Condition:   %s\n", p.Condition)
		fmt.Printf("Complete:    %t   Has box: %t   Assembled: %t\n", p.Complete, p.HasBox, p.Assembled)
		if p.ListedForSale {
			fmt.Printf("Listed:      %.2f on %s\n", p.Price, p.SalePlatform)
		}
		if p.PurchasePrice > 0 {
			fmt.Printf("Purchased:   %.2f", p.PurchasePrice)
			if p.PurchaseYear > 0 {
				fmt.Printf(" (%d)", p.PurchaseYear)
			}
			fmt.Println()
		}
		if p.Notes != "" {
			fmt.Printf("Notes:       %s\n", p.Notes)
		}
		fmt.Printf("Updated:     %s\n", p.UpdatedAt.Format(time.RFC3339))
		return nil
	},
}

var puzzleRmCmd = &cobra.Command{
	Use:   "rm <puzzle-id>",
	Short: "Delete a puzzle and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeletePuzzle(cmd.Context(), cliUser, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func init() {
	f := puzzleAddCmd.Flags()
	f.StringVar(&puzzleAddFlags.title, "title", "", "puzzle title (required)")
	f.StringVar(&puzzleAddFlags.author, "author", "", "author or brand")
	f.IntVar(&puzzleAddFlags.pieces, "pieces", 0, "piece count")
	f.StringVar(&puzzleAddFlags.condition, "condition", "good", "condition (new|like_new|good|used|damaged)")
	f.BoolVar(&puzzleAddFlags.complete, "complete", true, "all pieces present")
	f.BoolVar(&puzzleAddFlags.assembled, "assembled", false, "currently assembled")
	f.BoolVar(&puzzleAddFlags.hasBox, "box", true, "original box present")
	f.BoolVar(&puzzleAddFlags.listed, "listed", false, "listed for sale")
	f.StringVar(&puzzleAddFlags.salePlatform, "platform", "", "sale platform")
	f.Float64Var(&puzzleAddFlags.purchasePrice, "purchase-price", 0, "purchase price")
	f.Float64Var(&puzzleAddFlags.price, "price", 0, "asking price")
	f.IntVar(&puzzleAddFlags.productionYear, "production-year", 0, "production year")
	f.IntVar(&puzzleAddFlags.purchaseYear, "purchase-year", 0, "purchase year")
	f.StringVar(&puzzleAddFlags.notes, "notes", "", "free-text notes")

	lf := puzzleListCmd.Flags()
	lf.StringVar(&puzzleListFlags.search, "search", "", "search in title and notes")
	lf.StringVar(&puzzleListFlags.author, "author", "", "filter by author")
	lf.BoolVar(&puzzleListFlags.listed, "listed", false, "filter by listed-for-sale")
	lf.StringVar(&puzzleListFlags.sortBy, "sort", "", "sort field (title|pieces_count|author|price|updated_at)")
	lf.BoolVar(&puzzleListFlags.sortDesc, "desc", false, "sort descending")
	lf.IntVar(&puzzleListFlags.limit, "limit", 100, "max results")

	puzzleCmd.AddCommand(puzzleAddCmd, puzzleListCmd, puzzleShowCmd, puzzleRmCmd)
	rootCmd.AddCommand(puzzleCmd)
}
