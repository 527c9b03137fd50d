package main

import (
	"log"
	"net/http"

	"answergate/api"
	"answergate/internal/config"
	"answergate/internal/container"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	// .env is a convenience for local runs; production sets real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	c, err := container.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer c.Close()

	if cfg.Store.Backend == "postgres" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := c.InitWithDatabase(db); err != nil {
			log.Fatalf("Failed to initialize database components: %v", err)
		}
	}

	app := api.NewApp(api.Config{
		Gate:   c.Gate,
		RAG:    c.RAG,
		Store:  c.Store,
		Oracle: c.Oracle,
	})

	addr := ":" + cfg.Server.Port
	log.Printf("Starting answer quality gate API on %s (store backend: %s)", addr, cfg.Store.Backend)
	if err := http.ListenAndServe(addr, app.Router()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
