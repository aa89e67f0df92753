package main

import (
	"os"

	"github.com/gustavo/chainagent/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
