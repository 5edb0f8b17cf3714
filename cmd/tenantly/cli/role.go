package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/service"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage user roles",
		Long:  "List and create the roles whose permissions gate user access, and choose the role new users receive.",
	}

	cmd.AddCommand(newRoleListCmd())
	cmd.AddCommand(newRoleCreateCmd())
	cmd.AddCommand(newRoleDefaultCmd())

	return cmd
}

// ---------- role list ----------

func newRoleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRoleList(jsonOutput bool) error {
	ctx := context.Background()
	svc, store, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	roles, err := svc.Roles.List(ctx, false)
	if err != nil {
		return describeError(err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(roles)
	}

	fmt.Printf("%-20s %-20s %-8s %-8s %s\n", "NAME", "SLUG", "DEFAULT", "ACTIVE", "PERMISSIONS")
	fmt.Printf("%-20s %-20s %-8s %-8s %s\n", "----", "----", "-------", "------", "-----------")
	for _, r := range roles {
		fmt.Printf("%-20s %-20s %-8s %-8s %s\n", r.Name, r.Slug, yesNo(r.IsDefault), yesNo(r.IsActive),
			strings.Join(r.Permissions, ","))
	}
	return nil
}

// ---------- role create ----------

func newRoleCreateCmd() *cobra.Command {
	var (
		name        string
		slug        string
		description string
		permissions []string
		isDefault   bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new role",
		Example: `  tenantly role create --name Editor --permissions read:profile,write:profile,read:comments,write:comments
  tenantly role create --name Member --default`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleCreate(service.CreateRoleInput{
				Name:        name,
				Slug:        slug,
				Description: description,
				Permissions: permissions,
				IsDefault:   isDefault,
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Role name (required)")
	cmd.Flags().StringVar(&slug, "slug", "", "URL-safe identifier (derived from the name if omitted)")
	cmd.Flags().StringVar(&description, "description", "", "Role description")
	cmd.Flags().StringSliceVar(&permissions, "permissions", nil, "Comma-separated permissions, e.g. read:profile,write:profile")
	cmd.Flags().BoolVar(&isDefault, "default", false, "Make this the role assigned to new users")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runRoleCreate(in service.CreateRoleInput) error {
	ctx := context.Background()
	svc, store, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	role, err := svc.Roles.Create(ctx, in)
	if err != nil {
		return describeError(err)
	}

	fmt.Printf("Created role %q (slug %s)\n", role.Name, role.Slug)
	fmt.Printf("  id:          %s\n", role.ID)
	fmt.Printf("  permissions: %s\n", strings.Join(role.Permissions, ", "))
	if role.IsDefault {
		fmt.Println("  default:     yes")
	}
	return nil
}

// ---------- role default ----------

func newRoleDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "default <id-or-slug>",
		Short:   "Make a role the default for new users",
		Example: `  tenantly role default editor`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleDefault(args[0])
		},
	}
}

func runRoleDefault(ref string) error {
	ctx := context.Background()
	svc, store, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := resolveRoleID(ctx, store, ref)
	if err != nil {
		return err
	}
	role, err := svc.Roles.SetDefault(ctx, id)
	if err != nil {
		return describeError(err)
	}
	fmt.Printf("Default role is now %q\n", role.Name)
	return nil
}

// resolveRoleID accepts a role ID or slug.
func resolveRoleID(ctx context.Context, store *config.Store, ref string) (string, error) {
	var (
		role *model.Role
		err  error
	)
	if role, err = store.GetRoleBySlug(ctx, ref); err == nil {
		return role.ID, nil
	}
	if !errors.Is(err, config.ErrNotFound) {
		return "", err
	}
	if role, err = store.GetRole(ctx, ref); err == nil {
		return role.ID, nil
	}
	if errors.Is(err, config.ErrNotFound) {
		return "", fmt.Errorf("role %q not found", ref)
	}
	return "", err
}
