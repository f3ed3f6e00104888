package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"rollbook/internal/config"
	"rollbook/internal/db"
	"rollbook/internal/ledger"
	"rollbook/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.Load()

	store := openStore(cfg)

	addr := ":8080"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}

	srv := server.New(store, cfg)
	defer srv.Close()

	log.Printf("rollbook server listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}

// openStore connects to Postgres when DATABASE_URL is set and falls back
// to the in-memory store otherwise, so the server can run without a
// database for local play.
func openStore(cfg config.Config) ledger.Store {
	if os.Getenv("DATABASE_URL") == "" {
		log.Println("DATABASE_URL not set, using in-memory store")
		return ledger.NewMemoryStore()
	}
	conn, err := db.Open()
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		log.Fatalf("database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeSeconds) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeSeconds) * time.Second)
	if err := db.Migrate(conn); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	return ledger.NewGormStore(conn)
}
