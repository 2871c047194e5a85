package main

import (
	"github.com/spf13/cobra"

	"petlink/cmd/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the PetLink server (foreground)",
	Long: `Start the PetLink server.

Configuration is read from PETLINK_* environment variables, for example:
  PETLINK_HTTP_ADDR=0.0.0.0:8080
  PETLINK_DATABASE_URL=postgres://petlink@db/petlink
  PETLINK_JWT_SECRET=<at least 32 bytes>
  PETLINK_NATS_URL=nats://127.0.0.1:4222`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run(app.LoadConfig())
	},
}
