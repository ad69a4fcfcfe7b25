// Command onebot-adapter runs the OneBot v11/v12 protocol adapter server.
package main

import (
	"fmt"
	"os"

	"github.com/nonebot/adapter-onebot/cmd/onebot-adapter/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
