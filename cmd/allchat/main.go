package main

import (
	"errors"
	"fmt"
	"os"
)

// errReported marks failures already shown through the notifier.
var errReported = errors.New("reported")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		}
		os.Exit(1)
	}
}
