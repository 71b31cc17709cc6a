package main

import (
	"log"
	"os"
)

func run() error { return nil }

func main() {
	if err := run(); err != nil {
		log.Fatalf("failed: %v", err)
	}
	os.Exit(0)
}

func helper() {
	os.Exit(2) // want "call to log.Fatal or os.Exit outside main.main"
}
