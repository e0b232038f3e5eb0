package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arnavshah/volunteer-portal-go/pkg/app"
	"github.com/arnavshah/volunteer-portal-go/pkg/config"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/identity"
	"github.com/arnavshah/volunteer-portal-go/pkg/logging"
)

var (
	logLevel string
	portal   *app.App
	ctx      = context.Background()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portalctl",
		Short: "Volunteer portal maintenance CLI",
		Long:  `Maintenance tasks for the volunteer portal: points reconciliation, leaderboard inspection and certificate repair.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if portal != nil {
				portal.Close()
				_ = portal.Logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override APP_LOG_LEVEL")

	rootCmd.AddCommand(recomputePointsCmd())
	rootCmd.AddCommand(leaderboardCmd())
	rootCmd.AddCommand(regenerateCertificateCmd())
	rootCmd.AddCommand(verifyCertificateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp loads config and wires the same services the server uses
func initApp() error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	cfg.App.CertWorkers = 0

	logger, err := logging.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	portal, err = app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return nil
}

func recomputePointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-points",
		Short: "Rebuild every volunteer's total from approved proofs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			updated, err := portal.Leaderboard.RecomputeAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Recomputed points for %d volunteers\n", updated)
			return nil
		},
	}
}

func leaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the volunteer ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := portal.Leaderboard.Rank(ctx)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			if len(entries) == 0 {
				fmt.Println("No volunteers yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%3d. %-30s @%-20s %6d pts\n", e.Position, e.Name, e.Username, e.Points)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the top N volunteers")
	return cmd
}

func regenerateCertificateCmd() *cobra.Command {
	var coordinatorEmail string
	cmd := &cobra.Command{
		Use:   "regenerate-certificate <proof_id>",
		Short: "Replace the certificate of an approved proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proofID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("proof_id must be a number: %w", err)
			}

			coord, err := portal.Directory.Resolve(ctx, identity.Principal{
				Role:  database.RoleCoordinator,
				Email: coordinatorEmail,
			})
			if err != nil {
				return fmt.Errorf("coordinator %s: %w", coordinatorEmail, err)
			}

			cert, err := portal.Proofs.RegenerateCertificate(ctx, uint(proofID), coord.ID)
			if err != nil {
				return err
			}
			portal.Logger.Info("certificate regenerated",
				zap.Uint64("proof_id", proofID),
				zap.String("certificate_id", cert.CertificateID),
			)
			fmt.Printf("Certificate:       %s\n", cert.CertificateID)
			fmt.Printf("Verification code: %s\n", cert.VerificationCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&coordinatorEmail, "coordinator", "", "Email of the coordinator who owns the event")
	_ = cmd.MarkFlagRequired("coordinator")
	return cmd
}

func verifyCertificateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-certificate <code>",
		Short: "Look up a certificate by its verification code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := portal.Certificates.Verify(ctx, args[0])
			if err != nil {
				return err
			}
			if !v.Valid {
				fmt.Println("Not a valid certificate.")
				return nil
			}
			fmt.Printf("Certificate: %s\n", v.CertificateID)
			fmt.Printf("Volunteer:   %s\n", v.VolunteerName)
			fmt.Printf("Event:       %s\n", v.EventTitle)
			if v.IssuedDate != nil {
				fmt.Printf("Issued:      %s\n", v.IssuedDate.Format("2006-01-02"))
			}
			fmt.Printf("Points:      %d\n", v.PointsAwarded)
			return nil
		},
	}
}
