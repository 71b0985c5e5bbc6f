package main

import (
	"context"
	"database/sql"
	"distance-matrix-service/internal/adapters/store"
	"distance-matrix-service/internal/config"
	"distance-matrix-service/internal/platform/db"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "dbtool",
	Short: "Schema and seed management for the distance matrix service",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := store.InitSchema(conn); err != nil {
			return err
		}
		log.Println("Schema ready.")
		return nil
	},
}

var seedSourcesCmd = &cobra.Command{
	Use:   "seed-sources <file.csv>",
	Short: "Import sources from a CSV file (name,address,lat,lon)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := store.SeedSourcesFromCSV(conn, args[0])
		if err != nil {
			return err
		}
		log.Printf("Seeded %d sources.", n)
		return nil
	},
}

var seedDestinationsCmd = &cobra.Command{
	Use:   "seed-destinations <file.csv>",
	Short: "Import destinations from a CSV file (name,pincode,address,lat,lon)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := store.SeedDestinationsFromCSV(conn, args[0])
		if err != nil {
			return err
		}
		log.Printf("Seeded %d destinations.", n)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache completeness counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()

		st, err := store.NewSQLDistanceStore(conn).Stats(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("sources:       %d\n", st.SourceCount)
		fmt.Printf("destinations:  %d\n", st.DestinationCount)
		fmt.Printf("cached pairs:  %d\n", st.CachedPairCount)
		fmt.Printf("possible:      %d\n", st.PossiblePairCount)
		fmt.Printf("missing:       %d\n", st.MissingPairCount)
		fmt.Printf("completion:    %.1f%%\n", st.CompletionPct)
		return nil
	},
}

func openDatabase() (*sql.DB, error) {
	if databaseURL := os.Getenv("DATABASE_URL"); strings.TrimSpace(databaseURL) != "" {
		return db.OpenPostgres(databaseURL)
	}
	return db.OpenSQLite(config.Get("DB_PATH", "data/app.db"))
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	rootCmd.AddCommand(initCmd, seedSourcesCmd, seedDestinationsCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
