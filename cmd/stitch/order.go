package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aliakbrhasan/stitchsync/internal/model"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Manage tailoring orders",
}

var (
	orderDelivery string
	orderNotes    string
	orderCustomer string
)

var orderAddCmd = &cobra.Command{
	Use:   "add CUSTOMER_ID TOTAL",
	Short: "Record a new order",
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

		o := &model.Order{
			CustomerID: args[0],
			Total:      total,
			Notes:      orderNotes,
		}
		if orderDelivery != "" {
			at, err := time.Parse("2006-01-02", orderDelivery)
			if err != nil {
				fatalf("invalid delivery date %q (want YYYY-MM-DD)", orderDelivery)
			}
			o.DeliveryAt = &at
		}

		created, err := st.InsertOrder(cmd.Context(), o)
		if err != nil {
			fatalf("failed to record order: %v", err)
		}
		fmt.Printf("Recorded order %s for %.2f (%s)\n", created.ID, created.Total, created.Status)
	},
}

var orderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orders",
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

		orders, err := st.ListOrders(cmd.Context(), orderCustomer)
		if err != nil {
			fatalf("failed to list orders: %v", err)
		}
		if len(orders) == 0 {
			fmt.Println("No orders")
			return
		}
		for _, o := range orders {
			marker := " "
			if o.Dirty {
				marker = "*"
			}
			delivery := "-"
			if o.DeliveryAt != nil {
				delivery = o.DeliveryAt.Format("2006-01-02")
			}
			fmt.Printf("%s %s  %-12s %8.2f  due %s  %s\n", marker, o.ID, o.Status, o.Total, delivery, o.CustomerID)
		}
	},
}

var orderStatusCmd = &cobra.Command{
	Use:   "set-status ORDER_ID STATUS",
	Short: "Move an order through the workshop",
	Long: `Move an order through the workshop.

Valid statuses: received, in_progress, ready, delivered, cancelled.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		status := model.OrderStatus(args[1])
		if !status.Valid() {
			fatalf("unknown status %q", args[1])
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

		o, err := st.UpdateOrder(cmd.Context(), args[0], model.OrderPatch{Status: &status})
		if err != nil {
			fatalf("failed to update order: %v", err)
		}
		fmt.Printf("Order %s is now %s\n", o.ID, o.Status)
	},
}

var orderDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an order",
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

		if err := st.Delete(cmd.Context(), model.KindOrder, args[0]); err != nil {
			fatalf("failed to delete order: %v", err)
		}
		fmt.Printf("Deleted order %s\n", args[0])
	},
}

func init() {
	orderAddCmd.Flags().StringVar(&orderDelivery, "delivery", "", "promised delivery date (YYYY-MM-DD)")
	orderAddCmd.Flags().StringVar(&orderNotes, "notes", "", "free-form notes")
	orderListCmd.Flags().StringVar(&orderCustomer, "customer", "", "filter by customer id")

	orderCmd.AddCommand(orderAddCmd)
	orderCmd.AddCommand(orderListCmd)
	orderCmd.AddCommand(orderStatusCmd)
	orderCmd.AddCommand(orderDeleteCmd)
	rootCmd.AddCommand(orderCmd)
}
