package main

import (
	"context"
	"errors"
	"log"
	"os"

	"hatsubai/internal/util"
)

func main() {
	log.SetFlags(0)

	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("%s %v", util.RedBold("!!! FATAL"), err)
		}
		os.Exit(1)
	}
}
