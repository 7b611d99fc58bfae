package cmd

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/sqr-cli/credentials"
)

// Auth command flags.
var (
	authToken          string
	authUserID         string
	authEngineURL      string
	authNonInteractive bool
)

// AuthCmd represents the auth command group.
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage replay credentials",
	Long: `Manage the replay user identity used for service calls.

Credentials are stored encrypted in ~/.sqr/credentials.yaml. The
encryption key lives in the system keyring; on machines without one,
set SQR_ENCRYPTION_KEY (hex key) or SQR_PASSPHRASE (derived key).

Environment variables (SQR_USER_TOKEN, SQR_USER_ID) take precedence
over stored credentials.`,
}

// registerCmd creates a fresh test account against the engine.
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a fresh test account and store its credentials",
	Long: `Register a fresh test account against the engine and store
its credentials. The account email is randomly generated, so every
registration creates a new throwaway identity.

The engine URL comes from --engine-url, the SQR_ENGINE_URL environment
variable, or the engine_url config setting.

Examples:
  sqr auth register
  sqr auth register --engine-url https://engine.example.com`,
	RunE: runRegister,
}

// loginCmd stores a manually supplied token.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an existing user token",
	Long: `Store an existing user id and token instead of registering a
new account. Without --token the token is prompted for without echo.

Examples:
  sqr auth login --user-id user-123
  sqr auth login --user-id user-123 --token eyJhbGciOi...`,
	RunE: runLogin,
}

// authStatusCmd shows the stored identity.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current credential status",
	RunE:  runAuthStatus,
}

// logoutCmd clears stored credentials.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored credentials",
	Long: `Clear stored credentials.

Environment variables (SQR_USER_TOKEN, SQR_USER_ID) are not affected.`,
	RunE: runLogout,
}

func init() {
	registerCmd.Flags().StringVar(&authEngineURL, "engine-url", "", "Engine base URL for registration")

	loginCmd.Flags().StringVar(&authUserID, "user-id", "", "User id to store (required)")
	loginCmd.Flags().StringVar(&authToken, "token", "", "User token to store (prompted when omitted)")
	loginCmd.Flags().BoolVar(&authNonInteractive, "non-interactive", false, "Fail instead of prompting for input")
	_ = loginCmd.MarkFlagRequired("user-id")

	AuthCmd.AddCommand(registerCmd)
	AuthCmd.AddCommand(loginCmd)
	AuthCmd.AddCommand(authStatusCmd)
	AuthCmd.AddCommand(logoutCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}

	engineURL := authEngineURL
	if engineURL == "" {
		engineURL = cfg.EngineURL
	}
	if engineURL == "" {
		return fmt.Errorf("no engine url configured; pass --engine-url or set engine_url in the config")
	}

	creds, err := credentials.Register(cmd.Context(), engineURL, nil)
	if err != nil {
		return err
	}
	creds.ServiceURL = cfg.ServiceURL

	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	if err := store.Save(creds); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Registered %s\n", creds.Email)
	fmt.Fprintf(out, "  user id: %s\n", creds.UserID)
	fmt.Fprintf(out, "  token:   %s\n", credentials.MaskToken(creds.Token))
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	token := authToken
	if token == "" {
		if authNonInteractive {
			return fmt.Errorf("no token provided and --non-interactive is set")
		}
		fmt.Fprint(cmd.OutOrStdout(), "Token: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("reading token: %w", err)
		}
		token = string(raw)
	}
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}

	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	if err := store.Save(&credentials.Credentials{UserID: authUserID, Token: token}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored credentials for %s\n", authUserID)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	creds, err := store.GetActiveCredential()
	if errors.Is(err, credentials.ErrNoCredentials) {
		fmt.Fprintln(out, "Not authenticated. Run 'sqr auth register' or 'sqr auth login'.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "user id: %s\n", creds.UserID)
	if creds.Email != "" {
		fmt.Fprintf(out, "email:   %s\n", creds.Email)
	}
	fmt.Fprintf(out, "token:   %s\n", credentials.MaskToken(creds.Token))
	if creds.ServiceURL != "" {
		fmt.Fprintf(out, "service: %s\n", creds.ServiceURL)
	}
	fmt.Fprintf(out, "key:     %s\n", store.KeySource())
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return err
	}
	if err := store.Delete(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Credentials cleared.")
	return nil
}
