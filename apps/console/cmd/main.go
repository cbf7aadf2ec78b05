package main

import (
	"github.com/complyhq/remedy/apps/console/commands"
)

func main() {
	commands.Execute()
}
