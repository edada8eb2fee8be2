// Package main is the entry point for the gition working-copy server.
package main

import (
	"os"

	"github.com/gitionhq/gition-server/cmd/gition-server/app"
	"github.com/gitionhq/gition-server/internal/logger"
)

func main() {
	logger.Initialize(os.Getenv("UNSTRUCTURED_LOGS") == "true")

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
