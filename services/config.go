package services

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config は環境変数から読み込む設定
type Config struct {
	Port               string
	SlackBotToken      string
	SlackSigningSecret string
	GitHubToken        string
	DatabasePath       string
	IssueURLPrefix     string
	NotifyMode         string
	SlashCommand       string
}

// LoadConfig は .env（あれば）と環境変数から設定を読み込む
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not loaded: %v", err)
	}

	config := &Config{
		Port:               getEnv("PORT", "8080"),
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		GitHubToken:        os.Getenv("GITHUB_TOKEN"),
		DatabasePath:       getEnv("DATABASE_PATH", "code_review.db"),
		IssueURLPrefix:     os.Getenv("ISSUE_URL_PREFIX"),
		NotifyMode:         strings.ToLower(getEnv("NOTIFY_MODE", NotifyModeThread)),
		SlashCommand:       getEnv("SLACK_COMMAND", "/code-review"),
	}

	if config.SlackBotToken == "" {
		return nil, errors.New("SLACK_BOT_TOKEN is not set")
	}
	if config.SlackSigningSecret == "" {
		log.Println("SLACK_SIGNING_SECRET is not set; all slack requests will be rejected")
	}
	if config.NotifyMode != NotifyModeThread && config.NotifyMode != NotifyModeDM {
		log.Printf("unknown NOTIFY_MODE %q, falling back to %s", config.NotifyMode, NotifyModeThread)
		config.NotifyMode = NotifyModeThread
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
