package main

import (
	"log"
	"os"

	"answergate/adapters/postgres"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		databaseURL = os.Args[1]
	}
	if databaseURL == "" {
		log.Fatal("Usage: migrate <database_url> (or set DATABASE_URL)")
	}

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(postgres.Schema()); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	log.Printf("Remediation store schema applied")
}
