// Package main is the entry point for the Entralite CLI.
package main

import (
	"os"

	"github.com/entralite/entralite/cmd/entralite/app"
	"github.com/entralite/entralite/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
