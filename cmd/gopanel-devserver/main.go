// gopanel-devserver runs the in-memory GO-Panel backend stub for local
// development.
//
// Auth is either RS256 against a JWKS endpoint (JWKS_URL, optionally
// JWT_AUDIENCE and JWT_ISSUER) or HS256 against DEV_JWT_SECRET. Exactly one
// of the two must be configured.
package main

import (
	"os"
	"strconv"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"gopanel/devserver"
)

func main() {
	_ = godotenv.Load()

	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	var auth *devserver.Auth
	switch {
	case os.Getenv("JWKS_URL") != "":
		jwks, err := keyfunc.Get(os.Getenv("JWKS_URL"), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = devserver.NewAuth(jwks, os.Getenv("JWT_AUDIENCE"), os.Getenv("JWT_ISSUER"))
	case os.Getenv("DEV_JWT_SECRET") != "":
		auth = devserver.NewDevAuth([]byte(os.Getenv("DEV_JWT_SECRET")))
	default:
		log.Fatal("missing auth config: set JWKS_URL or DEV_JWT_SECRET")
	}

	listenAddr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		listenAddr = ":" + v
	}

	logger := log.StandardLogger()
	srv := devserver.New(auth, logger)
	logger.WithField("addr", listenAddr).Info("gopanel dev server listening")
	if err := srv.Start(listenAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
