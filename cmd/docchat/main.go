// cmd/docchat/main.go
package main

import (
	"github.com/joho/godotenv"
	cmd "github.com/mwiater/docchat/internal/commands"
)

// main loads API keys from a local .env file, when present, and hands off
// to the cobra root command.
func main() {
	_ = godotenv.Load()
	cmd.Execute()
}
