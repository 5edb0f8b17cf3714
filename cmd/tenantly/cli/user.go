package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tenantly/tenantly/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect user accounts",
	}

	cmd.AddCommand(newUserListCmd())

	return cmd
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var (
		jsonOutput bool
		in         service.ListUsersInput
		active     string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		Example: `  tenantly user list --search alice
  tenantly user list --active false --sort -createdAt --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch active {
			case "":
			case "true", "false":
				b := active == "true"
				in.IsActive = &b
			default:
				return fmt.Errorf("--active must be true or false")
			}
			return runUserList(in, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&in.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&in.Limit, "limit", 20, "Page size (max 100)")
	cmd.Flags().StringVar(&in.Search, "search", "", "Match email or name")
	cmd.Flags().StringVar(&in.RoleID, "role-id", "", "Only users with this role")
	cmd.Flags().StringVar(&active, "active", "", "Filter by active flag (true or false)")
	cmd.Flags().StringVar(&in.Sort, "sort", "", "Sort field, prefix with - for descending (e.g. -createdAt)")

	return cmd
}

func runUserList(in service.ListUsersInput, jsonOutput bool) error {
	ctx := context.Background()
	svc, store, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := svc.Users.List(ctx, in)
	if err != nil {
		return describeError(err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list.Users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	fmt.Printf("%-36s %-30s %-24s %-8s\n", "ID", "EMAIL", "NAME", "ACTIVE")
	fmt.Printf("%-36s %-30s %-24s %-8s\n", "--", "-----", "----", "------")
	for _, u := range list.Users {
		fmt.Printf("%-36s %-30s %-24s %-8s\n", u.ID, u.Email, u.Name, yesNo(u.IsActive))
	}
	fmt.Printf("\npage %d of %d (%d users)\n", list.Meta.Page, list.Meta.TotalPages, list.Meta.Total)
	return nil
}
