package main

import (
	"os"

	"github.com/deploymenttheory/go-recipe-runner/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
