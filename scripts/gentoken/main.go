package main

import (
	"fmt"
	"os"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	email string
	role  int
	ttl   time.Duration
	admin bool
)

var rootCmd = &cobra.Command{
	Use:   "gentoken [user-id]",
	Short: "Issue a development JWT accepted by contestd",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&email, "email", "test@example.com", "email claim")
	rootCmd.Flags().IntVar(&role, "role", auth.RoleStudent, "role claim (0 student, 1 setter, 2 admin)")
	rootCmd.Flags().BoolVar(&admin, "admin", false, "shorthand for --role 2")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
}

func run(cmd *cobra.Command, args []string) error {
	for _, f := range []string{".env", "../.env"} {
		_ = godotenv.Load(f)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}

	userID := "test-user-123"
	if len(args) > 0 {
		userID = args[0]
	}
	if admin {
		role = auth.RoleAdmin
	}

	now := time.Now()
	expires := now.Add(ttl)
	token, err := auth.NewJWTValidator(secret).Sign(auth.Claims{
		Sub:   userID,
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== JWT Token Generated ===")
	fmt.Fprintln(out)
	fmt.Fprintln(out, token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Token Claims ===")
	fmt.Fprintf(out, "User ID: %s\n", userID)
	fmt.Fprintf(out, "Email: %s\n", email)
	fmt.Fprintf(out, "Role: %d\n", role)
	fmt.Fprintf(out, "Expires: %s\n", expires.Format(time.RFC3339))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
