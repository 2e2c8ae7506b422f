package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-qris-store.git/internal/orders"
)

func (a *app) productCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage catalog products",
	}
	cmd.AddCommand(a.productListCmd())
	cmd.AddCommand(a.productCreateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "type [product-id] [AUTO|LICENSE|INVITE]",
		Short: "Change product type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			t := orders.ProductType(strings.ToUpper(strings.TrimSpace(args[1])))
			if err := a.repo.SetProductType(cmd.Context(), id, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "product %d type -> %s\n", id, t)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "price [product-id] [price]",
		Short: "Change product price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			price, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			if err := a.repo.SetProductPrice(cmd.Context(), id, price); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "product %d price -> %d\n", id, price)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle [product-id]",
		Short: "Activate or deactivate a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			active, err := a.repo.ToggleProductActive(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "product %d active=%t\n", id, active)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete [product-id]",
		Short: "Delete a product and its unused stock; delivered units are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.repo.DeleteProduct(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "product %d deleted\n", id)
			return nil
		},
	})
	return cmd
}

func (a *app) productListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all products with remaining stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := a.repo.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tTITLE\tPRICE\tTYPE\tACTIVE\tSTOCK")
			for _, p := range ps {
				c, err := a.stock.Counts(cmd.Context(), p.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%t\t%d\n",
					p.ID, orders.CategoryFromName(p.Name), p.Title(), p.Price, p.Type, p.IsActive, c.Left(p.Type))
			}
			return tw.Flush()
		},
	}
}

func (a *app) productCreateCmd() *cobra.Command {
	var category, title string
	var price int64
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create an AUTO product",
		Example: `  storeadmin product create --category Streaming --title "1 Bulan" --price 10000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.repo.CreateProduct(cmd.Context(), category, title, price)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created product %d: %s (%d)\n", p.ID, p.Name, p.Price)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "product category")
	cmd.Flags().StringVarP(&title, "title", "t", "", "product title")
	cmd.Flags().Int64VarP(&price, "price", "p", 0, "price in rupiah")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseAmount menerima "10000", "10.000", atau "10,000".
func parseAmount(s string) (int64, error) {
	clean := strings.NewReplacer(".", "", ",", "", "_", "").Replace(strings.TrimSpace(s))
	v, err := strconv.ParseInt(clean, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
