package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/service"
	"github.com/dentops/chairside/internal/ui"
)

var (
	bookDentist string
	bookAt      string
	bookReason  string
	bookConsult string
)

var bookCmd = &cobra.Command{
	Use:   "book <patient name>",
	Short: "Book an appointment (works offline)",
	Long: `Book an appointment for a patient.

The time accepts natural language, e.g. "tomorrow at 10am" or "next tuesday
14:30". Offline bookings are queued and checked against the canonical
calendar for double-bookings when they sync; a conflicting booking stays
pending instead of overwriting the existing slot.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		w := when.New(nil)
		w.Add(en.All...)
		w.Add(common.All...)

		result, err := w.Parse(bookAt, time.Now())
		if err != nil || result == nil {
			fmt.Fprintf(os.Stderr, "Error: could not understand time %q\n", bookAt)
			os.Exit(1)
		}

		app.monitor.CheckNow(cmd.Context())

		svc := service.NewAppointments(app.deps("[appointments] "))
		appt, err := svc.Create(cmd.Context(), &clinic.Appointment{
			SyncMeta:       clinic.SyncMeta{ClinicID: app.cfg.ClinicID},
			ConsultationID: bookConsult,
			PatientName:    args[0],
			DentistID:      bookDentist,
			StartTime:      result.Time,
			Reason:         bookReason,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Booked %s with dentist %s at %s\n",
			appt.PatientName, appt.DentistID, appt.StartTime.Format("Mon Jan 2 15:04"))
		if clinic.IsProvisionalID(appt.ID) {
			fmt.Println(ui.Pending.Render("Queued offline; the slot will be confirmed against the canonical calendar at sync."))
		} else {
			fmt.Printf("%s appointment %s confirmed\n", ui.Online.Render("OK:"), appt.ID)
		}
	},
}

func init() {
	bookCmd.Flags().StringVar(&bookDentist, "dentist", "", "dentist id (required)")
	bookCmd.Flags().StringVar(&bookAt, "at", "", "appointment time, natural language accepted (required)")
	bookCmd.Flags().StringVar(&bookReason, "reason", "", "reason for the visit")
	bookCmd.Flags().StringVar(&bookConsult, "consultation", "", "related consultation id")
	_ = bookCmd.MarkFlagRequired("dentist")
	_ = bookCmd.MarkFlagRequired("at")
}
