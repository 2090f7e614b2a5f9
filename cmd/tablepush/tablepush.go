package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/beevee/tablepush/internal"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		internal.NewLogger(os.Stderr, false).Error("loading .env failed", "error", err)
		os.Exit(internal.ExitConfig)
	}

	os.Exit(internal.Run(os.Args, os.Stdout, os.Stderr))
}
