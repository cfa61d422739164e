package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dentops/chairside/internal/clinic"
	"github.com/dentops/chairside/internal/remote"
	"github.com/dentops/chairside/internal/service"
	"github.com/dentops/chairside/internal/ui"
)

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Record and list patient consultations",
}

var (
	consultDentist   string
	consultPhone     string
	consultDiagnosis string
	consultNotes     string
)

var consultAddCmd = &cobra.Command{
	Use:   "add <patient name>",
	Short: "Record a consultation (works offline)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		app.monitor.CheckNow(cmd.Context())

		svc := service.NewConsultations(app.deps("[consultations] "))
		c, err := svc.Create(cmd.Context(), &clinic.Consultation{
			SyncMeta:     clinic.SyncMeta{ClinicID: app.cfg.ClinicID},
			PatientName:  args[0],
			PatientPhone: consultPhone,
			DentistID:    consultDentist,
			Date:         time.Now(),
			Diagnosis:    consultDiagnosis,
			Notes:        consultNotes,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Consultation recorded for %s (id %s)\n", c.PatientName, c.ID)
		if clinic.IsProvisionalID(c.ID) {
			fmt.Println(ui.Pending.Render("Queued offline; a canonical id will be assigned at sync."))
		}
	},
}

var consultPatient string

var consultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List consultations",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		online := app.monitor.CheckNow(cmd.Context())

		svc := service.NewConsultations(app.deps("[consultations] "))
		list, err := svc.List(cmd.Context(), app.cfg.ClinicID, remote.ConsultationFilter{
			PatientName: consultPatient,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if !online {
			fmt.Println(ui.Muted.Render("Offline: showing cached records."))
		}
		if len(list) == 0 {
			fmt.Println("No consultations found")
			return
		}
		for _, c := range list {
			marker := " "
			if c.SyncStatus == clinic.StatusPending {
				marker = ui.Pending.Render("*")
			}
			fmt.Printf("%s %-14s %s  %s  %s\n",
				marker, c.ID, c.Date.Format("2006-01-02"), c.PatientName, c.Diagnosis)
		}
	},
}

func init() {
	consultAddCmd.Flags().StringVar(&consultDentist, "dentist", "", "dentist id (required)")
	consultAddCmd.Flags().StringVar(&consultPhone, "phone", "", "patient phone")
	consultAddCmd.Flags().StringVar(&consultDiagnosis, "diagnosis", "", "diagnosis")
	consultAddCmd.Flags().StringVar(&consultNotes, "notes", "", "free-form notes")
	_ = consultAddCmd.MarkFlagRequired("dentist")

	consultListCmd.Flags().StringVar(&consultPatient, "patient", "", "filter by patient name")

	consultCmd.AddCommand(consultAddCmd)
	consultCmd.AddCommand(consultListCmd)
}
