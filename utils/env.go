package utils

import (
	"github.com/joho/godotenv"
)

// LoadEnv loads .env into the process environment; a missing file is not an error.
func LoadEnv() {
	godotenv.Load()
}
