package database

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var DB *sql.DB

// Init opens the SQLite database at the given path and runs migrations
func Init(path, migrationsDir string) error {
	var err error

	// Open SQLite database (creates if doesn't exist)
	DB, err = sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return err
	}

	// Configure connection pool
	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxLifetime(time.Hour)

	// Test the connection
	if err = DB.Ping(); err != nil {
		return err
	}

	if err = optimizeDatabase(); err != nil {
		return err
	}

	log.Println("Database connected successfully with WAL mode")

	if err = RunSQLScripts(migrationsDir); err != nil {
		return err
	}

	return nil
}

// optimizeDatabase configures SQLite for optimal performance
func optimizeDatabase() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=30000",
		"PRAGMA mmap_size=268435456", // 256MB
	}

	for _, pragma := range pragmas {
		if _, err := DB.Exec(pragma); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// RunSQLScripts reads and executes SQL scripts from the directory in name order
func RunSQLScripts(sqlDir string) error {
	files, err := os.ReadDir(sqlDir)
	if err != nil {
		return err
	}

	var names []string
	for _, file := range files {
		if filepath.Ext(file.Name()) == ".sql" {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sqlContent, err := os.ReadFile(filepath.Join(sqlDir, name))
		if err != nil {
			return err
		}

		if _, err = DB.Exec(string(sqlContent)); err != nil {
			return err
		}

		log.Printf("Executed SQL script: %s", name)
	}

	return nil
}
