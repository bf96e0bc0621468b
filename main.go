// The main package for the purifier executable.
package main

import (
	"github.com/JakeFAU/purifier-console/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
