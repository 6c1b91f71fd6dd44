package config

import (
	"github.com/spigell/freelance-pipeline/internal/secrets"
)

// GeminiAPIKey resolves the Gemini key from file, inline value or GEMINI_API_KEY.
func (c *Config) GeminiAPIKey() (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  c.AI.Gemini.APIKeyFile,
		Value: c.AI.Gemini.APIKey,
		Env:   EnvGeminiAPIKey,
	})
}

// TelegramToken resolves the bot token from file, inline value or TELEGRAM_BOT_TOKEN.
func (c *Config) TelegramToken() (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "telegram bot token",
		File:  c.Notify.Telegram.TokenFile,
		Value: c.Notify.Telegram.Token,
		Env:   EnvTelegramToken,
	})
}
