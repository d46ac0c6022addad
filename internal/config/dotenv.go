package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads env files in priority order: .env.<APP_ENV>.local, then
// .env.local, then .env. godotenv never overwrites already-set variables, so
// OS env vars win and earlier files win over later ones. Returns the files
// actually found.
func LoadDotEnv() []string {
	var candidates []string
	if env := os.Getenv("APP_ENV"); env != "" {
		candidates = append(candidates, fmt.Sprintf(".env.%s.local", env))
	}
	candidates = append(candidates, ".env.local", ".env")

	var found []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			found = append(found, f)
		}
	}
	if len(found) > 0 {
		_ = godotenv.Load(found...)
	}
	return found
}
