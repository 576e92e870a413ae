package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aliakbrhasan/stitchsync/internal/model"
	"github.com/aliakbrhasan/stitchsync/internal/pos"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Manage invoices",
}

var (
	invoicePaid     float64
	invoiceDue      string
	invoiceCustomer string
)

var invoiceAddCmd = &cobra.Command{
	Use:   "add CUSTOMER_ID TOTAL",
	Short: "Issue an invoice",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		total, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fatalf("invalid total %q", args[1])
		}

		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		inv := &model.Invoice{
			CustomerID: args[0],
			Total:      total,
			PaidAmount: invoicePaid,
		}
		if invoiceDue != "" {
			due, err := time.Parse("2006-01-02", invoiceDue)
			if err != nil {
				fatalf("invalid due date %q (want YYYY-MM-DD)", invoiceDue)
			}
			inv.DueAt = &due
		}

		created, err := st.InsertInvoice(cmd.Context(), inv)
		if err != nil {
			fatalf("failed to issue invoice: %v", err)
		}
		fmt.Printf("Issued %s for %.2f (%s, id %s)\n", created.Number, created.Total, created.Status, created.ID)
	},
}

var invoiceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		invoices, err := st.ListInvoices(cmd.Context(), invoiceCustomer)
		if err != nil {
			fatalf("failed to list invoices: %v", err)
		}
		if len(invoices) == 0 {
			fmt.Println("No invoices")
			return
		}
		for _, inv := range invoices {
			marker := " "
			if inv.Dirty {
				marker = "*"
			}
			fmt.Printf("%s %s  %-10s %8.2f paid %8.2f  %-8s %s\n",
				marker, inv.ID, inv.Number, inv.Total, inv.PaidAmount, inv.Status, inv.CustomerID)
		}
	},
}

var invoicePayCmd = &cobra.Command{
	Use:   "pay INVOICE_ID AMOUNT",
	Short: "Record a payment against an invoice",
	Long: `Record a payment against an invoice.

The invoice status moves to partial or paid based on the running paid
amount, and the customer's lifetime total is updated.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		amount, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fatalf("invalid amount %q", args[1])
		}

		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		svc := pos.New(st, nil)
		inv, err := svc.RecordPayment(cmd.Context(), args[0], amount)
		if err != nil {
			fatalf("failed to record payment: %v", err)
		}
		fmt.Printf("%s: paid %.2f of %.2f (%s)\n", inv.Number, inv.PaidAmount, inv.Total, inv.Status)
	},
}

var invoiceDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an invoice",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		if err := st.Delete(cmd.Context(), model.KindInvoice, args[0]); err != nil {
			fatalf("failed to delete invoice: %v", err)
		}
		fmt.Printf("Deleted invoice %s\n", args[0])
	},
}

func init() {
	invoiceAddCmd.Flags().Float64Var(&invoicePaid, "paid", 0, "amount already paid")
	invoiceAddCmd.Flags().StringVar(&invoiceDue, "due", "", "due date (YYYY-MM-DD)")
	invoiceListCmd.Flags().StringVar(&invoiceCustomer, "customer", "", "filter by customer id")

	invoiceCmd.AddCommand(invoiceAddCmd)
	invoiceCmd.AddCommand(invoiceListCmd)
	invoiceCmd.AddCommand(invoicePayCmd)
	invoiceCmd.AddCommand(invoiceDeleteCmd)
	rootCmd.AddCommand(invoiceCmd)
}
