package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"logi-track/internal/access"
	"logi-track/internal/storage"
)

var (
	userRole     string
	userPassword string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage portal accounts",
	Long:  `List accounts, create accounts and change account roles.`,
}

var listUsersCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users with their roles",
	Run: func(cmd *cobra.Command, args []string) {
		listUsers(cmd.Context())
	},
}

var createUserCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create an account. A password is generated unless --password is given.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		createUser(cmd.Context(), args[0])
	},
}

var roleUserCmd = &cobra.Command{
	Use:   "role <email> <role>",
	Short: "Change the role of an account",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		setUserRole(cmd.Context(), args[0], args[1])
	},
}

func formatTime(u *storage.User) string {
	if u.LastSignInAt == nil {
		return "-"
	}
	return u.LastSignInAt.Local().Format("2006-01-02 15:04")
}

func listUsers(ctx context.Context) {
	users, err := provider.ListUsers(ctx)
	exitOnError("Failed to list users", err)

	if len(users) == 0 {
		fmt.Println("No users found")
		return
	}

	// Print table header
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "USER ID\tEMAIL\tROLE\tLAST SIGN-IN")
	fmt.Fprintln(w, "-------\t-----\t----\t------------")

	for i := range users {
		u := &users[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Role, formatTime(u))
	}

	w.Flush()
	fmt.Printf("\nTotal users: %d\n", len(users))
}

func createUser(ctx context.Context, address string) {
	address = access.NormalizeEmail(address)
	exitOnError("Invalid email", access.ValidEmail(address))

	role := strings.ToLower(userRole)
	if !storage.ValidRole(role) {
		exitOnError("Invalid role", fmt.Errorf("%q is not one of %s", userRole, strings.Join(storage.Roles, ", ")))
	}

	password := userPassword
	generated := password == ""
	if generated {
		var err error
		password, err = access.GeneratePassword(tempPasswordLength)
		exitOnError("Failed to generate password", err)
	} else {
		exitOnError("Invalid password", access.ValidPassword(password))
	}

	hash, err := access.HashPassword(password)
	exitOnError("Failed to hash password", err)

	user := &storage.User{Email: address, PasswordHash: hash, Role: role}
	exitOnError("Failed to create user", provider.CreateUser(ctx, user))

	fmt.Printf("Created %s (%s) with role %s\n", user.Email, user.ID, user.Role)
	if generated {
		fmt.Printf("Temporary password: %s\n", password)
	}
}

func setUserRole(ctx context.Context, address, role string) {
	role = strings.ToLower(role)
	if !storage.ValidRole(role) {
		exitOnError("Invalid role", fmt.Errorf("%q is not one of %s", role, strings.Join(storage.Roles, ", ")))
	}

	user, err := provider.GetUserByEmail(ctx, access.NormalizeEmail(address))
	exitOnError("Failed to find user", err)
	exitOnError("Failed to update role", provider.UpdateUserRole(ctx, user.ID, role))

	fmt.Printf("%s is now %s\n", user.Email, role)
}

const tempPasswordLength = 12

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(listUsersCmd, createUserCmd, roleUserCmd)

	createUserCmd.Flags().StringVar(&userRole, "role", storage.RoleUser, "role of the new account")
	createUserCmd.Flags().StringVar(&userPassword, "password", "", "initial password")
}
