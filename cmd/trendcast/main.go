package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"trendcast/internal/logger"
)

func main() {
	_ = godotenv.Load()
	logger.Init()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
