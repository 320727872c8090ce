// Command devtoken mints a bearer token for local testing against JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/estatehub/backend/internal/auth"
)

func main() {
	user := flag.String("user", "", "user id (random when empty)")
	role := flag.String("role", auth.RoleBidder, "role claim: bidder or admin")
	ttl := flag.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	id := uuid.New()
	if *user != "" {
		var err error
		if id, err = uuid.Parse(*user); err != nil {
			slog.Error("invalid user id", "error", err)
			os.Exit(1)
		}
	}
	tok, err := auth.NewService(secret).IssueToken(id, *role, *ttl)
	if err != nil {
		slog.Error("issue token", "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "user %s role %s expires %s\n", id, *role, time.Now().Add(*ttl).UTC().Format(time.RFC3339))
	fmt.Println(tok)
}
