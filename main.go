package main

import (
	"os"

	"github.com/agora-at/agorat/cmd/agorat"
)

func main() {
	if err := agorat.Execute(); err != nil {
		os.Exit(1)
	}
}
