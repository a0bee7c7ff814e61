// Package main is the entry point for the gatehouse server.
package main

import (
	"os"

	"github.com/gatehouse-dev/gatehouse/cmd/gatehouse/app"
	"github.com/gatehouse-dev/gatehouse/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
