// Command provenant inspects the versions and invocations recorded by
// tracked language model programs.
package main

import (
	"os"

	"github.com/roach88/provenant/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
