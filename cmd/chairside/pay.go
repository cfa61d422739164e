package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/service"
	"github.com/dentops/chairside/internal/ui"
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Record treatments and payments",
}

var (
	payMethod   string
	payOperator string
)

var payTreatmentCmd = &cobra.Command{
	Use:   "treatment <consultation id> <name> <amount>",
	Short: "Attach a billable treatment to a consultation (works offline)",
	Long: `Attach a treatment to a consultation.

Amounts are whole CFA francs. The treatment starts UNPAID; its paid and
remaining amounts are always derived from the payments applied to it.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		amount, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || amount < 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid amount %q\n", args[2])
			os.Exit(1)
		}

		app.monitor.CheckNow(cmd.Context())

		svc := service.NewTreatments(app.deps("[treatments] "))
		t, err := svc.Create(cmd.Context(), &clinic.Treatment{
			SyncMeta:       clinic.SyncMeta{ClinicID: app.cfg.ClinicID},
			ConsultationID: args[0],
			Name:           args[1],
			Date:           time.Now(),
			NominalAmount:  amount,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Treatment %s recorded: %s, %d CFA (%s)\n", t.ID, t.Name, t.NominalAmount, t.Status)
		if clinic.IsProvisionalID(t.ID) {
			fmt.Println(ui.Pending.Render("Queued offline; will sync after its consultation."))
		}
	},
}

var payAddCmd = &cobra.Command{
	Use:   "add <treatment id> <amount>",
	Short: "Record a payment against a treatment (works offline)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || amount <= 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid amount %q\n", args[1])
			os.Exit(1)
		}

		app.monitor.CheckNow(cmd.Context())

		svc := service.NewPayments(app.deps("[payments] "))
		p, err := svc.Create(cmd.Context(), &clinic.Payment{
			SyncMeta:    clinic.SyncMeta{ClinicID: app.cfg.ClinicID},
			TreatmentID: args[0],
			Amount:      amount,
			Method:      payMethod,
			ReceivedAt:  time.Now(),
			OperatorID:  payOperator,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Payment %s recorded: %d CFA (%s)\n", p.ID, p.Amount, p.Method)

		tsvc := service.NewTreatments(app.deps("[treatments] "))
		if t, err := tsvc.Get(cmd.Context(), app.cfg.ClinicID, p.TreatmentID); err == nil {
			fmt.Printf("Treatment %s: paid %d, remaining %d (%s)\n",
				t.ID, t.PaidAmount, t.RemainingAmount, t.Status)
		}
		if clinic.IsProvisionalID(p.ID) {
			fmt.Println(ui.Pending.Render("Queued offline; canonical totals will be recomputed at sync."))
		}
	},
}

func init() {
	payAddCmd.Flags().StringVar(&payMethod, "method", "cash", "payment method")
	payAddCmd.Flags().StringVar(&payOperator, "operator", "", "operator id receiving the payment")

	payCmd.AddCommand(payTreatmentCmd)
	payCmd.AddCommand(payAddCmd)
}
