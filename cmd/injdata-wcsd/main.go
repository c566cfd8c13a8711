package main

import (
	"log"

	wcsd "injdata/services/injdata-wcsd"
)

func main() {
	if err := wcsd.Main(); err != nil {
		log.Fatalf("injdata-wcsd: %v", err)
	}
}
