package env

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for packaged builds/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads an optional .env file. A desktop install usually ships
// without one, so not finding any is not an error.
func SetupEnvFile() {
	envFiles := []string{
		".env", // Current directory
	}

	if exe, err := os.Executable(); err == nil {
		envFiles = append(envFiles, filepath.Join(filepath.Dir(exe), ".env"))
	}
	if cfg, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(cfg, "kioku", ".env"))
	}

	for _, envFile := range envFiles {
		if parsed, err := godotenv.Read(envFile); err == nil {
			Env = parsed
			return
		}
	}
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
