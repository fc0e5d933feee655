// Command lumenctl mints operator tokens for the /v1/ops provisioning surface.
//
// Operator tokens are short-lived JWTs signed with OPERATOR_TOKEN_SECRET.
// They are separate from tenant API keys and grant access to project,
// client, and key provisioning endpoints only.
//
// Usage:
//
//	OPERATOR_TOKEN_SECRET=... go run ./cmd/lumenctl -subject alice
//	OPERATOR_TOKEN_SECRET=... go run ./cmd/lumenctl -subject ci-bot -expiry 7200
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/openlux/lumen-hub/internal/auth"
	"github.com/openlux/lumen-hub/internal/config"
)

func main() {
	subject := flag.String("subject", "", "operator identity recorded in audit logs (required)")
	expiry := flag.Int("expiry", 3600, "token lifetime in seconds")
	flag.Parse()

	if *subject == "" {
		flag.Usage()
		os.Exit(2)
	}

	secret := os.Getenv("OPERATOR_TOKEN_SECRET")
	if len(secret) < 32 {
		log.Fatalf("OPERATOR_TOKEN_SECRET must be set and at least 32 characters")
	}

	cfg := config.Config{
		OperatorTokenSecret:    secret,
		OperatorTokenExpirySec: *expiry,
	}

	token, err := auth.GenerateOperatorToken(cfg, *subject)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Println(token)
}
