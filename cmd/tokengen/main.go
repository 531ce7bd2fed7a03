// Command tokengen mints bearer tokens for local testing.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	count := flag.IntP("count", "n", 1, "number of users to mint tokens for")
	userID := flag.StringP("user", "u", "", "user id (random when empty; only with --count=1)")
	name := flag.String("name", "", "display name claim")
	ttl := flag.Int("ttl", cfg.Auth.AccessTokenTTLMinutes, "token lifetime in minutes")
	flag.Parse()

	if *count < 1 {
		fmt.Fprintln(os.Stderr, "--count must be at least 1")
		os.Exit(2)
	}
	if *userID != "" && *count != 1 {
		fmt.Fprintln(os.Stderr, "--user cannot be combined with --count")
		os.Exit(2)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, *ttl)
	for i := 0; i < *count; i++ {
		id := *userID
		if id == "" {
			id = uuid.NewString()
		}
		token, expiresAt, err := tokens.GenerateToken(id, *name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s\t%s\t%s\n", id, expiresAt.Format("2006-01-02T15:04:05Z07:00"), token)
	}
}
