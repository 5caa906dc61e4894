package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/smarttransit/fleet-sync/internal/models"
	"github.com/smarttransit/fleet-sync/internal/utils"
	"github.com/smarttransit/fleet-sync/pkg/jwt"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		userID   string
		role     string
		secret   string
		expiry   time.Duration
		generate bool
	)

	flagSet := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	flagSet.StringVar(&userID, "user", "", "user id to put in the token")
	flagSet.StringVar(&role, "role", string(models.RoleStudent), "student, driver or admin")
	flagSet.StringVar(&secret, "secret", "", "signing secret (default: JWT_SECRET from the environment or .env)")
	flagSet.DurationVar(&expiry, "expiry", 24*time.Hour, "token lifetime")
	flagSet.BoolVar(&generate, "generate-secret", false, "print a fresh JWT_SECRET and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if generate {
		value, err := utils.GenerateJWTSecret()
		if err != nil {
			return err
		}
		fmt.Printf("JWT_SECRET=%s\n", value)
		return nil
	}

	if userID == "" {
		return fmt.Errorf("--user is required")
	}
	if !models.Role(role).IsValid() {
		return fmt.Errorf("invalid --role %q (must be student, driver or admin)", role)
	}

	if secret == "" {
		// .env is optional, as for the server
		_ = godotenv.Load()
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("no signing secret: pass --secret or set JWT_SECRET")
	}

	token, err := jwt.NewService(secret, expiry).GenerateAccessToken(userID, role)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `devtoken mints access tokens for exercising the socket and REST API by hand.

Usage:
  devtoken --user s1 --role student
  devtoken --generate-secret

Flags:
%s`, flagSet.FlagUsages())
}
