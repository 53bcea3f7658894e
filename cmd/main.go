package main

import (
	"os"

	"github.com/Ebaad-esr/QuizMaster/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
