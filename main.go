// Command tsccm is the Tenable.sc CLI Manager.
package main

import (
	"os"

	"github.com/limberduck/tsccm/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
