package main

import (
	"flag"
	"fmt"
	"os"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/noah-isme/billing-bridge/internal/config"
)

func main() {
	var (
		source = flag.String("source", "file://db/migrations", "migration source URL")
		down   = flag.Bool("down", false, "roll back all migrations instead of applying them")
	)
	flag.Parse()

	databaseURL, err := config.LoadDatabaseURL()
	if err != nil {
		fail(err)
	}

	m, err := migrate.New(*source, databaseURL)
	if err != nil {
		fail(err)
	}
	defer func() { _, _ = m.Close() }()

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && err != migrate.ErrNoChange {
		fail(err)
	}
	fmt.Println("migrations applied")
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "migrate:", err)
	os.Exit(1)
}
