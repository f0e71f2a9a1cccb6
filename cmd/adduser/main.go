// Command adduser creates or updates a login in the users table.
//
//	adduser -u alice -p secret -r teacher
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	auth "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/config"
	"github.com/mind-engage/mindengage-assess/internal/db"
)

func main() {
	username := flag.String("u", "", "username")
	password := flag.String("p", "", "password (or ADDUSER_PASSWORD)")
	role := flag.String("r", "student", "role: student, teacher or admin")
	flag.Parse()

	cfg := config.Load()
	cfg.SetupLogging()

	if *password == "" {
		*password = os.Getenv("ADDUSER_PASSWORD")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db open failed")
	}
	defer dbh.Close()

	u, err := auth.NewUserRepo(dbh).Upsert(ctx, *username, *password, *role)
	if err != nil {
		log.Fatal().Err(err).Str("username", *username).Msg("adduser")
	}
	log.Info().Str("id", u.ID).Str("username", u.Username).Str("role", u.Role).Msg("user saved")
}
