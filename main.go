package main

import (
	"fmt"
	"os"

	"github.com/zeu5/rl-frame/commands"
)

// main entry point to training, evaluation and the distributed roles
func main() {
	rootCommand := commands.GetRootCommand()
	if err := rootCommand.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
