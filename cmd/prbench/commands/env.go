// Package commands implements the prbench CLI's mine and harness verbs.
package commands

import (
	"fmt"
	"os"

	"github.com/prbench/prbench/pkg/bencherrors"
)

// Credentials holds everything spec.md §6's "Environment variables"
// subsection names: code-hosting and LLM provider credentials, an
// optional upload token, and an optional log-level selector. Grounded on
// the teacher's database.LoadConfigFromEnv getEnvOrDefault pattern,
// generalized from DB_* keys to PRBENCH_* ones.
type Credentials struct {
	GitHubToken string
	LLMAPIKey   string
	UploadToken string
	LogLevel    string
}

// LoadCredentials reads required and optional credentials from the
// environment. A missing required credential is a configuration error
// (bencherrors.Fatal), matching spec.md §6's "absence of required
// credentials at startup is a configuration error".
func LoadCredentials() (Credentials, error) {
	creds := Credentials{
		GitHubToken: os.Getenv("PRBENCH_GITHUB_TOKEN"),
		LLMAPIKey:   os.Getenv("PRBENCH_LLM_API_KEY"),
		UploadToken: os.Getenv("PRBENCH_UPLOAD_TOKEN"),
		LogLevel:    getEnvOrDefault("PRBENCH_LOG_LEVEL", "info"),
	}

	var missing []string
	if creds.GitHubToken == "" {
		missing = append(missing, "PRBENCH_GITHUB_TOKEN")
	}
	if creds.LLMAPIKey == "" {
		missing = append(missing, "PRBENCH_LLM_API_KEY")
	}
	if len(missing) > 0 {
		return creds, bencherrors.New(bencherrors.Fatal, "missing_credentials",
			fmt.Errorf("required environment variables not set: %v", missing))
	}

	return creds, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
