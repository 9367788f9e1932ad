// Command aifix runs a failing command and asks the model to fix it.
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
	return cli.Execute(cli.NewAifixCmd(version), os.Args[1:])
}
