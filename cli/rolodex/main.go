package main

import (
	"os"

	rolodexcmder "github.com/papercomputeco/rolodex/cmd/rolodex"
)

func main() {
	cmd := rolodexcmder.NewRolodexCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
