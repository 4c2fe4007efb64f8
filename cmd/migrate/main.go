package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"
	_ "modernc.org/sqlite"

	"chanwatch_bot/migrations"
)

func main() {
	dbPath := pflag.StringP("db", "d", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to sqlite database")
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Exec(db, args[0]); err != nil {
		log.Fatal(err)
	}

	v, err := migrations.Current(db)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("schema version %d", v)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-d|--db path] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range migrations.Commands {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", c.Name, c.Usage)
	}
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Flags:")
	pflag.PrintDefaults()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
