package main

import (
	"os"

	"github.com/SiphoYawe/mina-cli/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
