package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aliakbrhasan/stitchsync/internal/model"
	"github.com/aliakbrhasan/stitchsync/internal/pos"
)

var customerCmd = &cobra.Command{
	Use:   "customer",
	Short: "Manage customers",
}

var (
	customerPhone        string
	customerAddress      string
	customerLabel        string
	customerNotes        string
	customerMeasurements string
)

var customerAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a customer",
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

		c := &model.Customer{
			Name:    args[0],
			Phone:   customerPhone,
			Address: customerAddress,
			Label:   customerLabel,
			Notes:   customerNotes,
		}
		if customerMeasurements != "" {
			c.Measurements = json.RawMessage(customerMeasurements)
		}

		created, err := st.InsertCustomer(cmd.Context(), c)
		if err != nil {
			fatalf("failed to add customer: %v", err)
		}
		fmt.Printf("Added customer %s (%s)\n", created.Name, created.ID)
	},
}

var customerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customers",
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

		customers, err := st.ListCustomers(cmd.Context())
		if err != nil {
			fatalf("failed to list customers: %v", err)
		}
		if len(customers) == 0 {
			fmt.Println("No customers")
			return
		}
		for _, c := range customers {
			marker := " "
			if c.Dirty {
				marker = "*"
			}
			label := ""
			if c.Label != "" {
				label = " [" + c.Label + "]"
			}
			fmt.Printf("%s %s  %-24s %s%s\n", marker, c.ID, c.Name, c.Phone, label)
		}
	},
}

var customerShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a customer with invoice and order totals",
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

		svc := pos.New(st, nil)
		summary, err := svc.Summary(cmd.Context(), args[0])
		if err != nil {
			fatalf("failed to load customer: %v", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fatalf("failed to render customer: %v", err)
		}
	},
}

var customerDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a customer",
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

		if err := st.Delete(cmd.Context(), model.KindCustomer, args[0]); err != nil {
			fatalf("failed to delete customer: %v", err)
		}
		fmt.Printf("Deleted customer %s\n", args[0])
	},
}

func init() {
	customerAddCmd.Flags().StringVar(&customerPhone, "phone", "", "phone number")
	customerAddCmd.Flags().StringVar(&customerAddress, "address", "", "address")
	customerAddCmd.Flags().StringVar(&customerLabel, "label", "", "label, e.g. vip or wholesale")
	customerAddCmd.Flags().StringVar(&customerNotes, "notes", "", "free-form notes")
	customerAddCmd.Flags().StringVar(&customerMeasurements, "measurements", "", "measurements as a JSON object")

	customerCmd.AddCommand(customerAddCmd)
	customerCmd.AddCommand(customerListCmd)
	customerCmd.AddCommand(customerShowCmd)
	customerCmd.AddCommand(customerDeleteCmd)
	rootCmd.AddCommand(customerCmd)
}
