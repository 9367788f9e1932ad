// Command aido runs natural-language instructions through a model that
// can call local tools.
package main

import (
	"os"

	"github.com/clawinfra/aido/internal/cli"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	return cli.Execute(cli.NewAidoCmd(version), os.Args[1:])
}
