package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const recentLimit = 30

func (a *app) stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Manage invite slots and payload stock",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add-invite [product-id] [count]",
		Short: "Add invite slots (max 500 per call)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, n, err := idAndCount(args)
			if err != nil {
				return err
			}
			added, err := a.stock.AddInviteSlots(cmd.Context(), id, n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d invite slots to product %d\n", added, id)
			return nil
		},
	})
	cmd.AddCommand(a.addPayloadCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "del-invite [product-id] [count]",
		Short: "Delete up to count oldest unused invite slots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, n, err := idAndCount(args)
			if err != nil {
				return err
			}
			deleted, err := a.stock.DeleteInviteSlots(cmd.Context(), id, n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d invite slots from product %d\n", deleted, id)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "del-payload [product-id]",
		Short: "Delete the oldest unused payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			unitID, err := a.stock.DeleteOnePayload(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted payload unit %d\n", unitID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "counts [product-id]",
		Short: "Show remaining units per pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := a.stock.Counts(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "product %d: invite=%d payload=%d\n", id, c.InviteLeft, c.PayloadLeft)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "recent",
		Short: "List the latest stock units",
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := a.stock.Recent(cmd.Context(), recentLimit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPRODUCT\tKIND\tUSED\tORDER\tCREATED")
			for _, u := range units {
				order := "-"
				if u.UsedByOrder != nil {
					order = *u.UsedByOrder
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%t\t%s\t%s\n",
					u.ID, u.ProductID, u.Kind, u.IsUsed, order, u.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	})
	return cmd
}

func (a *app) addPayloadCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add-payload [product-id] [payload]",
		Short: "Add one payload (argument, --file, or stdin; multi-line kept as is)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			payload, err := readPayload(cmd, args, file)
			if err != nil {
				return err
			}
			unitID, err := a.stock.AddPayload(cmd.Context(), id, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added payload unit %d to product %d\n", unitID, id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read payload from file ('-' for stdin)")
	return cmd
}

func readPayload(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case len(args) == 2:
		return args[1], nil
	case file == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		return strings.TrimRight(string(b), "\n"), err
	case file != "":
		b, err := os.ReadFile(file)
		return strings.TrimRight(string(b), "\n"), err
	}
	return "", fmt.Errorf("payload required: pass it as argument or use --file")
}

func idAndCount(args []string) (int64, int, error) {
	id, err := parseID(args[0])
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid count %q", args[1])
	}
	return id, n, nil
}
