package main

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/akovalev/expenso/internal/domain"
)

func newCategoriesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage expense categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			categories, err := st.ListCategories(cmd.Context(), ctx.userID())
			if err != nil {
				return err
			}
			return printJSON(cmd, categories)
		},
	})

	var color string
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			category := domain.Category{
				ID:    uuid.New().String(),
				Name:  args[0],
				Color: color,
			}
			if err := st.CreateCategory(cmd.Context(), ctx.userID(), category); err != nil {
				return err
			}
			return printJSON(cmd, category)
		},
	}
	addCmd.Flags().StringVar(&color, "color", "", "Display color, e.g. #ff8800")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == domain.FallbackCategoryID {
				return fmt.Errorf("the %s category cannot be deleted", domain.FallbackCategoryID)
			}
			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			return st.DeleteCategory(cmd.Context(), ctx.userID(), args[0])
		},
	})

	return cmd
}

func newTransactionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Manage saved transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			transactions, err := st.ListTransactions(cmd.Context(), ctx.userID(), limit, offset)
			if err != nil {
				return err
			}
			return printJSON(cmd, transactions)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of transactions")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			return st.DeleteTransaction(cmd.Context(), ctx.userID(), args[0])
		},
	})

	return cmd
}

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	var fromFlag, toFlag string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Per-category spend totals over a date window",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := civil.DateOf(time.Now())
			from := civil.Date{Year: now.Year, Month: now.Month, Day: 1}
			to := now

			var err error
			if fromFlag != "" {
				if from, err = civil.ParseDate(fromFlag); err != nil {
					return fmt.Errorf("invalid --from date: %w", err)
				}
			}
			if toFlag != "" {
				if to, err = civil.ParseDate(toFlag); err != nil {
					return fmt.Errorf("invalid --to date: %w", err)
				}
			}

			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			summary, err := st.SummarizeByCategory(cmd.Context(), ctx.userID(), from, to)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"from":    from.String(),
				"to":      to.String(),
				"summary": summary,
			})
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", "", "Window start (YYYY-MM-DD, default: first of the current month)")
	cmd.Flags().StringVar(&toFlag, "to", "", "Window end (YYYY-MM-DD, default: today)")

	return cmd
}
