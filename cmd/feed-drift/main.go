package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Credentials for the query service may live in a local .env file.
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded .env")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
