package main

import (
	"fmt"
	"os"

	"github.com/klirineu/offertrack-web/internal/logger"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n", r)
			logger.Close()
			os.Exit(1)
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
