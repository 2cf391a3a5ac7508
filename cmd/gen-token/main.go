// Command gen-token mints an HS256 bearer token for local testing against a
// server running with AUTH_JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chris/taskchat/config"
	"github.com/chris/taskchat/internal/auth"
)

func main() {
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: gen-token [-ttl 24h] <user-id>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET must be set")
	}

	token, err := auth.IssueHS256([]byte(cfg.JWTSecret), flag.Arg(0), cfg.JWTAudience, cfg.JWTIssuer, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Print(token)
}
