//go:build !js && !wasm

package main

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/himanishpuri/muzam/pkg/logger"
	"github.com/himanishpuri/muzam/pkg/muzam"
	"github.com/himanishpuri/muzam/pkg/muzam/storage"
	"github.com/joho/godotenv"
)

var (
	port           int
	dbPath         string
	tempDir        string
	sampleRate     int
	allowedOrigins string
	logRequests    bool
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func parseFlags() {
	flag.IntVar(&port, "port", getEnvInt("PORT", 8080), "HTTP server port (env: PORT)")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("MUZAM_DB", storage.DefaultDBFile), "SQLite file, postgres:// DSN, badger://<dir> or memory://<file> (env: MUZAM_DB)")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("MUZAM_TEMP_DIR", os.TempDir()), "Directory for uploaded files")
	flag.IntVar(&sampleRate, "rate", getEnvInt("MUZAM_SAMPLE_RATE", 22050), "Decode sample rate (env: MUZAM_SAMPLE_RATE)")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("MUZAM_ORIGINS", "*"), "Comma-separated list of allowed CORS origins (use * for all)")
	flag.BoolVar(&logRequests, "log-requests", false, "Log every HTTP request")
	flag.Parse()
}

func main() {
	_ = godotenv.Load()
	parseFlags()
	log := logger.GetLogger()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	recognizer, err := muzam.New(
		muzam.WithDBPath(dbPath),
		muzam.WithSampleRate(sampleRate),
		muzam.WithLogger(log.With("recognizer")),
	)
	if err != nil {
		log.Fatalf("Failed to create recognizer: %v", err)
	}
	defer recognizer.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		TempDir:        tempDir,
		SampleRate:     sampleRate,
		AllowedOrigins: origins,
		LogRequests:    logRequests,
	}

	server, err := NewServer(recognizer, config)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
