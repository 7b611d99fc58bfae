package cmd

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/sqr-cli/client"
	"github.com/otherjamesbrown/sqr-cli/credentials"
	"github.com/otherjamesbrown/sqr-cli/pkg/logging"
)

// Service command flags.
var (
	serviceToken    string
	svcAddUserID    string
	svcAddUserToken string
)

// ServiceCmd groups the service maintenance operations.
var ServiceCmd = &cobra.Command{
	Use:   "service",
	Short: "Service maintenance operations",
	Long: `Service maintenance operations used around replay runs.

These endpoints require the service token, supplied with --service-token
or the SQR_SERVICE_TOKEN environment variable.`,
}

// flushCacheCmd clears the meeting cache.
var flushCacheCmd = &cobra.Command{
	Use:   "flush-cache",
	Short: "Flush the service meeting cache",
	Long: `Flush the service meeting cache so a repeated replay starts
from a clean slate.

Examples:
  sqr service flush-cache --service-token <token>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newMaintenanceClient(cmd)
		if err != nil {
			return err
		}
		if err := c.FlushCache(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache flushed.")
		return nil
	},
}

// flushAdminCacheCmd clears the admin cache.
var flushAdminCacheCmd = &cobra.Command{
	Use:   "flush-admin-cache",
	Short: "Flush the service admin cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newMaintenanceClient(cmd)
		if err != nil {
			return err
		}
		if err := c.FlushAdminCache(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Admin cache flushed.")
		return nil
	},
}

// addTokenCmd registers a user token with the service.
var addTokenCmd = &cobra.Command{
	Use:   "add-token",
	Short: "Register a user token with the service",
	Long: `Register a user token with the service so extension calls
carrying it authenticate. Without --token the token is prompted for
without echo.

Examples:
  sqr service add-token --user-id user-123 --service-token <token>`,
	RunE: runAddToken,
}

func init() {
	for _, c := range []*cobra.Command{flushCacheCmd, flushAdminCacheCmd, addTokenCmd} {
		c.Flags().StringVar(&serviceToken, "service-token", "", "Service bearer token (or SQR_SERVICE_TOKEN)")
	}

	addTokenCmd.Flags().StringVar(&svcAddUserID, "user-id", "", "User id to register (required)")
	addTokenCmd.Flags().StringVar(&svcAddUserToken, "token", "", "Token to register (prompted when omitted)")
	_ = addTokenCmd.MarkFlagRequired("user-id")

	ServiceCmd.AddCommand(flushCacheCmd)
	ServiceCmd.AddCommand(flushAdminCacheCmd)
	ServiceCmd.AddCommand(addTokenCmd)
}

// newMaintenanceClient builds a client carrying the service token.
func newMaintenanceClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}

	token := serviceToken
	if token == "" {
		token = os.Getenv("SQR_SERVICE_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("no service token; pass --service-token or set SQR_SERVICE_TOKEN")
	}

	opts := client.DefaultOptions()
	opts.Timeout = cfg.Timeout
	opts.ServiceToken = token
	return client.NewClient(cfg.ServiceURL, opts), nil
}

// prepareService resets the service environment ahead of a replay:
// both caches are flushed and the active user token is registered so
// the replayed calls authenticate.
func prepareService(cmd *cobra.Command, logger logging.Logger) error {
	c, err := newMaintenanceClient(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if err := c.FlushCache(ctx); err != nil {
		return err
	}
	if err := c.FlushAdminCache(ctx); err != nil {
		return err
	}

	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	creds, err := store.GetActiveCredential()
	switch {
	case err == nil:
		if err := c.AddUserToken(ctx, creds.UserID, creds.Token); err != nil {
			return err
		}
		logger.Info("service prepared", logging.F("user_id", creds.UserID))
	case errors.Is(err, credentials.ErrNoCredentials):
		logger.Warn("caches flushed but no credentials to register")
	default:
		return err
	}
	return nil
}

func runAddToken(cmd *cobra.Command, args []string) error {
	c, err := newMaintenanceClient(cmd)
	if err != nil {
		return err
	}

	token := svcAddUserToken
	if token == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Token: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		token = string(raw)
	}

	if err := c.AddUserToken(cmd.Context(), svcAddUserID, token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Token registered for %s\n", svcAddUserID)
	return nil
}
