package main // Entry point package

import (
	"log" // Logging library
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var Version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "user-auth-service",
		Usage:   "user registration, login and token refresh API",
		Version: Version,
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			consumeCommand(),
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err) // Log and exit if the command fails
	}
}
