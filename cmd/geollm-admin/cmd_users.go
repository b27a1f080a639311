package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geollm/geollm/internal/model"
	"github.com/geollm/geollm/internal/service"
)

var (
	createAdminUsername string
	createAdminEmail    string
	createAdminPassword string

	resetPasswordUsername string
	resetPasswordValue    string

	createAPIKeyUsername string
	createAPIKeyName     string
	createAPIKeyScopes   []string
	createAPIKeyExpires  int

	setActiveUsername string
	setActiveValue    bool
)

// createAdminCmd creates an administrator account.
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	RunE:  runCreateAdmin,
}

// resetPasswordCmd resets a user's password.
var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Reset a user's password",
	RunE:  runResetPassword,
}

// createAPIKeyCmd issues an API key for a user.
var createAPIKeyCmd = &cobra.Command{
	Use:   "create-api-key",
	Short: "Issue an API key for a user",
	Long: `Issue an API key for an existing user. The plaintext key is printed
once and cannot be recovered afterwards.`,
	RunE: runCreateAPIKey,
}

// setUserActiveCmd enables or disables an account.
var setUserActiveCmd = &cobra.Command{
	Use:   "set-user-active",
	Short: "Enable or disable a user account",
	Long: `Enable or disable a user account. Disabled accounts cannot sign in
and their API keys stop authenticating.`,
	RunE: runSetUserActive,
}

// listUsersCmd lists all accounts.
var listUsersCmd = &cobra.Command{
	Use:   "list-users",
	Short: "List all user accounts",
	RunE:  runListUsers,
}

func init() {
	createAdminCmd.Flags().StringVar(&createAdminUsername, "username", "", "username for the new account (required)")
	createAdminCmd.Flags().StringVar(&createAdminEmail, "email", "", "email for the new account (required)")
	createAdminCmd.Flags().StringVar(&createAdminPassword, "password", "", "password for the new account (required)")
	_ = createAdminCmd.MarkFlagRequired("username")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")

	resetPasswordCmd.Flags().StringVar(&resetPasswordUsername, "username", "", "account to reset (required)")
	resetPasswordCmd.Flags().StringVar(&resetPasswordValue, "password", "", "new password (required)")
	_ = resetPasswordCmd.MarkFlagRequired("username")
	_ = resetPasswordCmd.MarkFlagRequired("password")

	createAPIKeyCmd.Flags().StringVar(&createAPIKeyUsername, "username", "", "key owner (required)")
	createAPIKeyCmd.Flags().StringVar(&createAPIKeyName, "name", "", "display name for the key")
	createAPIKeyCmd.Flags().StringSliceVar(&createAPIKeyScopes, "scopes", []string{"read", "query"}, "scopes to grant (read, query, admin)")
	createAPIKeyCmd.Flags().IntVar(&createAPIKeyExpires, "expires", 0, "expiry in days (0 = never)")
	_ = createAPIKeyCmd.MarkFlagRequired("username")

	setUserActiveCmd.Flags().StringVar(&setActiveUsername, "username", "", "account to update (required)")
	setUserActiveCmd.Flags().BoolVar(&setActiveValue, "active", true, "whether the account may sign in")
	_ = setUserActiveCmd.MarkFlagRequired("username")
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	users := service.NewUserService(deps.repo, nil, nil, 0, nil)
	user, err := users.CreateAdmin(ctx, createAdminUsername, createAdminEmail, createAdminPassword)
	if err != nil {
		printFail("could not create admin")
		return err
	}

	printOK("admin %s created (id %s)", user.Username, user.ID)
	return nil
}

func runResetPassword(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	users := service.NewUserService(deps.repo, nil, nil, 0, nil)
	if err := users.ResetPassword(ctx, resetPasswordUsername, resetPasswordValue); err != nil {
		printFail("could not reset password")
		return err
	}

	printOK("password reset for %s", resetPasswordUsername)
	return nil
}

func runCreateAPIKey(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	user, err := deps.repo.GetUserByUsername(ctx, createAPIKeyUsername)
	if err != nil {
		printFail("user %q not found", createAPIKeyUsername)
		return err
	}

	keys := service.NewAPIKeyService(deps.repo, deps.cfg.IsProduction())
	resp, err := keys.CreateAPIKey(ctx, user.ID, model.APIKeyCreateRequest{
		Name:        createAPIKeyName,
		Scopes:      createAPIKeyScopes,
		ExpiresDays: createAPIKeyExpires,
	})
	if err != nil {
		printFail("could not create API key")
		return err
	}

	printOK("API key created for %s", user.Username)
	fmt.Printf("  id:     %s\n", resp.ID)
	fmt.Printf("  scopes: %s\n", strings.Join(resp.Scopes, ", "))
	fmt.Printf("  key:    %s\n", resp.Key)
	fmt.Println("\nStore this key now. It will not be shown again.")
	return nil
}

func runSetUserActive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	users := service.NewUserService(deps.repo, nil, nil, 0, nil)
	if err := users.SetActive(ctx, setActiveUsername, setActiveValue); err != nil {
		printFail("could not update %q", setActiveUsername)
		return err
	}

	state := "enabled"
	if !setActiveValue {
		state = "disabled"
	}
	printOK("account %s %s", setActiveUsername, state)
	return nil
}

func runListUsers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	users := service.NewUserService(deps.repo, nil, nil, 0, nil)
	list, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("no users")
		return nil
	}

	fmt.Printf("%-26s  %-20s  %-30s  %-6s  %-8s  %s\n", "ID", "USERNAME", "EMAIL", "ADMIN", "ACTIVE", "CREATED")
	for _, u := range list {
		fmt.Printf("%-26s  %-20s  %-30s  %-6v  %-8v  %s\n",
			u.ID, u.Username, u.Email, u.IsAdmin, u.IsActive, u.CreatedAt.Format("2006-01-02"))
	}
	return nil
}
