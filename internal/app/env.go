package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnv loads the first .env file found in the working directory or one of
// its two parents. Missing files are fine; containers inject variables
// directly.
func LoadEnv() (string, bool) {
	envPaths := []string{".env", "../../.env"}

	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		grandParentDir := filepath.Dir(parentDir)

		envPaths = append(envPaths,
			filepath.Join(workDir, ".env"),
			filepath.Join(parentDir, ".env"),
			filepath.Join(grandParentDir, ".env"),
		)
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			absPath, _ := filepath.Abs(envPath)
			return absPath, true
		}
	}
	return "", false
}

func announceEnv() {
	if path, ok := LoadEnv(); ok {
		fmt.Printf("Loaded environment from: %s\n", path)
		return
	}
	fmt.Println("No .env file found, using system environment variables (OK for pods/containers)")
}
