// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"codeberg.org/psuyearbook/yearbook-api/internal/commands"
)

func main() {
	if err := commands.Root().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
