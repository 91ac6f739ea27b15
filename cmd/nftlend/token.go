package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"nftlend/crypto"
	"nftlend/gateway/auth"
)

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable containing the gateway signing secret")
	subject := fs.String("subject", "", "Address the token acts for")
	scopes := fs.String("scopes", "", "Comma separated scopes, e.g. admin")
	issuer := fs.String("issuer", "", "Issuer claim expected by the gateway")
	audience := fs.String("audience", "", "Audience claim expected by the gateway")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("%s is not set", *secretEnv)
	}
	if *subject == "" {
		return errors.New("--subject is required")
	}
	actor, err := crypto.ParseAddress(*subject)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	token, err := auth.Issue(auth.Config{Secret: []byte(secret), Issuer: *issuer, Audience: *audience},
		actor, splitScopes(*scopes), *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func splitScopes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
