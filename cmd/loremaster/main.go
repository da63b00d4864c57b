// cmd/loremaster/main.go
package main

import (
	cmd "github.com/mwiater/loremaster/internal/cli"
)

// main starts the loremaster CLI by delegating to the cobra root command.
func main() {
	cmd.Execute()
}
