package main

import (
	"log"

	cached "injdata/services/injdata-cached"
)

func main() {
	if err := cached.Main(); err != nil {
		log.Fatalf("injdata-cached: %v", err)
	}
}
