package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/baharkarakas/mpesa-backend/internal/auth"
	"github.com/baharkarakas/mpesa-backend/internal/config"
	"github.com/baharkarakas/mpesa-backend/internal/db"
	"github.com/baharkarakas/mpesa-backend/internal/logger"
	"github.com/baharkarakas/mpesa-backend/internal/mpesa"
	"github.com/baharkarakas/mpesa-backend/internal/repository/postgres"
	"github.com/baharkarakas/mpesa-backend/internal/services"
)

var Version = "dev"

func main() {
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "mpesactl",
		Short:         "Operator tooling for the M-Pesa backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logger.NewWithWriter(cfg.Env, cmd.ErrOrStderr()))
		},
	}

	root.AddCommand(migrateCmd(cfg))
	root.AddCommand(tokenCmd(cfg))
	root.AddCommand(stkPushCmd(cfg))
	root.AddCommand(userCmd(cfg))
	return root
}

func migrateCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer pool.Close()
			if err := db.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func tokenCmd(cfg config.Config) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with JWT_SECRET",
		Example: `  mpesactl token --user 3f0c9a52-5d1e-4a8e-9b7a-0c6f1e2d3b4a
  mpesactl token --user ops --role admin --ttl 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != auth.RoleUser && role != auth.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				ttl = cfg.JWTTTL
			}
			tok, exp, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, ttl).Generate(userID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "role (user, admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func stkPushCmd(cfg config.Config) *cobra.Command {
	var (
		phone  string
		amount string
		ref    string
	)
	cmd := &cobra.Command{
		Use:   "stkpush",
		Short: "Send an STK push straight to the provider without recording a transaction",
		Long: `Send an STK push straight to the provider with the MPESA_* credentials.

Nothing is stored, so the resulting callback will not match a transaction.
Use it to check credentials and the callback URL against the sandbox.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			client := mpesa.NewClient(cfg.Mpesa)
			ack, err := client.InitiatePayment(cmd.Context(), mpesa.STKPushRequest{
				PhoneNumber:      phone,
				Amount:           amt,
				AccountReference: ref,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ack)
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "customer phone number")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in whole KES")
	cmd.Flags().StringVar(&ref, "ref", "", "account reference")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func userCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the postgres store",
	}
	var phone string
	create := &cobra.Command{
		Use:   "create",
		Short: "Open an account with a zero balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer pool.Close()
			u, err := services.NewUserService(postgres.NewRepositories(pool).Users).Register(cmd.Context(), phone)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&phone, "phone", "", "phone number (optional)")
	cmd.AddCommand(create)
	return cmd
}
