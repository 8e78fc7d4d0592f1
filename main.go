package main

import (
	"os"

	"formvm/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
