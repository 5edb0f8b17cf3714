package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
		Long:  "Create and list administrative accounts that manage users and roles through the API.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin account",
		Example: `  tenantly admin create --email root@example.com --name Root --role SUPER_ADMIN
  tenantly admin create --email mod@example.com --name Mod --role MODERATOR  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(email, password, name, role)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Admin display name (required)")
	cmd.Flags().StringVar(&role, "role", model.AdminRoleSuper, "Admin role: SUPER_ADMIN, ADMIN or MODERATOR")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runAdminCreate(email, password, name, role string) error {
	role = strings.ToUpper(role)
	if !model.ValidAdminRole(role) {
		return fmt.Errorf("invalid admin role %q", role)
	}

	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return err
		}
	}

	ctx := context.Background()
	svc, store, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	admin, err := svc.Admins.Create(ctx, service.CreateAdminInput{
		Email:    email,
		Password: password,
		Name:     name,
		Role:     role,
	})
	if err != nil {
		return describeError(err)
	}

	fmt.Printf("Created admin %q (%s)\n", admin.Email, admin.Role)
	fmt.Printf("  id: %s\n", admin.ID)
	return nil
}

// promptPassword reads a password twice from the terminal without echo.
func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// describeError flattens a business error, including field errors, into one
// CLI-friendly error.
func describeError(err error) error {
	se, ok := service.AsError(err)
	if !ok {
		return err
	}
	if len(se.Fields) == 0 {
		return fmt.Errorf("%s", se.Message)
	}
	parts := make([]string, len(se.Fields))
	for i, f := range se.Fields {
		parts[i] = f.Message
	}
	return fmt.Errorf("%s: %s", se.Message, strings.Join(parts, "; "))
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List admin accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(jsonOutput bool) error {
	ctx := context.Background()
	svc, store, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := svc.Admins.List(ctx, 1, 100)
	if err != nil {
		return describeError(err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list.Admins)
	}

	if len(list.Admins) == 0 {
		fmt.Println("No admin accounts. Use 'tenantly admin create' to create one.")
		return nil
	}

	fmt.Printf("%-30s %-24s %-12s %-8s\n", "EMAIL", "NAME", "ROLE", "ACTIVE")
	fmt.Printf("%-30s %-24s %-12s %-8s\n", "-----", "----", "----", "------")
	for _, a := range list.Admins {
		fmt.Printf("%-30s %-24s %-12s %-8s\n", a.Email, a.Name, a.Role, yesNo(a.IsActive))
	}
	if list.Meta != nil && list.Meta.Total > int64(len(list.Admins)) {
		fmt.Printf("\n(showing %d of %d)\n", len(list.Admins), list.Meta.Total)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
