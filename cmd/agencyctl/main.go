package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/cli"
	"github.com/garyjia/agency-ops/internal/config"
	"github.com/garyjia/agency-ops/internal/container"
	"github.com/garyjia/agency-ops/internal/domain/role"
	"github.com/garyjia/agency-ops/pkg/utils"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "agencyctl",
	Short: "Operator tooling for the agency operations database",
	Long: `agencyctl works directly against the configured database.
It checks billing readiness, mints API tokens and seeds demo data.
Background workers are never started.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	registerCommands()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func registerCommands() {
	readinessCmd := &cobra.Command{
		Use:   "readiness <project-id>",
		Short: "Show deliverables and every billing blocker for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				report, err := c.Services().Billing.EvaluateReadiness(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return cli.PrintJSON(cmd.OutOrStdout(), report)
				}
				cli.RenderReadiness(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate <project-id>",
		Short: "Run pre-invoice validation; exits non-zero when not ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				v, err := c.Services().Billing.RunPreInvoiceValidation(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := cli.PrintJSON(cmd.OutOrStdout(), v); err != nil {
						return err
					}
				} else {
					cli.RenderValidation(cmd.OutOrStdout(), v)
				}
				if !v.Ready {
					return fmt.Errorf("project %s is not ready for billing", args[0])
				}
				return nil
			})
		},
	}

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			rawRole, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if err := utils.ValidateIdentifier(userID); err != nil {
				return err
			}
			r, ok := role.Parse(rawRole)
			if !ok {
				return fmt.Errorf("unknown role %q", rawRole)
			}

			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				if ttl <= 0 {
					ttl = c.Config().Auth.TokenTTL
				}
				token, err := c.Identity().Mint(userID, r, ttl)
				if err != nil {
					return err
				}
				if jsonOutput {
					return cli.PrintJSON(cmd.OutOrStdout(), map[string]interface{}{
						"token":      token,
						"user_id":    userID,
						"role":       r,
						"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	tokenCmd.Flags().String("user", "", "user id (required)")
	tokenCmd.Flags().String("role", string(role.Client), "role to embed in the token")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = tokenCmd.MarkFlagRequired("user")

	seedCmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Create users and submit intakes from a fixture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			fixtures, err := cli.LoadFixtures(f)
			if err != nil {
				return err
			}

			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				result, err := cli.Seed(ctx, c.DB(), c.Repositories().User, c.Services().Intake, fixtures)
				if err != nil {
					return err
				}
				if jsonOutput {
					return cli.PrintJSON(cmd.OutOrStdout(), result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d user(s), %d project(s)\n", result.Users, len(result.Projects))
				for _, id := range result.Projects {
					fmt.Fprintln(cmd.OutOrStdout(), "  project", id)
				}
				return nil
			})
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check database and component health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				status := c.Health(ctx)
				if err := cli.PrintJSON(cmd.OutOrStdout(), status); err != nil {
					return err
				}
				if !status.Overall {
					return errors.New("unhealthy")
				}
				return nil
			})
		},
	}

	rootCmd.AddCommand(readinessCmd, validateCmd, tokenCmd, seedCmd, healthCmd)
}

// withContainer starts a worker-less container for the duration of fn.
// Logs go to stderr so command output stays clean.
func withContainer(ctx context.Context, fn func(ctx context.Context, c *container.Container) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      "warn",
		OutputPath: "stderr",
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	c, err := container.NewContainer(cfg, logger, container.WithoutWorkers())
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}

	return errors.Join(fn(ctx, c), c.Close())
}
