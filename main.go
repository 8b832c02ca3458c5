// The main package for the insight-curator executable.
package main

import (
	"github.com/JakeFAU/insight-curator/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
