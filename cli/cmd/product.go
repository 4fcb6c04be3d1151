package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage the products a livestream can auction",
}

var productAddCmd = &cobra.Command{
	Use:   "add <livestream-id> <name> <price>",
	Short: "Add a product to a livestream's catalog",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", args[2], err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		p, err := backend.AddProduct(ctx, args[0], args[1], price)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.2f\n", p.ID, p.Name, p.Price)
		return nil
	},
}

var productListCmd = &cobra.Command{
	Use:   "list <livestream-id>",
	Short: "List a livestream's products",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		products, err := backend.ListProducts(ctx, args[0])
		if err != nil {
			return err
		}
		if len(products) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no products")
			return nil
		}
		for _, p := range products {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%-24s %10.2f\n", p.ID, p.Name, p.Price)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(productCmd)
	productCmd.AddCommand(productAddCmd, productListCmd)
}
