package main

import (
	"os"

	"github.com/sctrl/eventstack/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
