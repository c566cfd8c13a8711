package main

import (
	"log"

	ingestd "injdata/services/injdata-ingestd"
)

func main() {
	if err := ingestd.Main(); err != nil {
		log.Fatalf("injdata-ingestd: %v", err)
	}
}
