package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldRunID identifies a single pipeline run.
	FieldRunID = "run_id"
	// FieldFeed is the feed URL a log entry relates to.
	FieldFeed = "feed"
	// FieldSource is the origin tag of a feed.
	FieldSource = "source"
	// FieldJobID is the stable job identifier.
	FieldJobID = "job_id"
	// FieldState is the coordinator state.
	FieldState = "state"
	// FieldProvider is the proposal capability provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the proposal capability model identifier.
	FieldModel = "ai_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// FeedFields describes a feed by its URL and origin tag.
func FeedFields(url, source string) []zap.Field {
	return StringFields(
		StringField{Key: FieldFeed, Value: url},
		StringField{Key: FieldSource, Value: source},
	)
}

// ProviderFields describes the proposal capability in use.
func ProviderFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// JobFields returns the id and a shortened title of a job.
func JobFields(id, title string) []zap.Field {
	fields := StringFields(StringField{Key: FieldJobID, Value: id})
	if t := strings.TrimSpace(title); t != "" {
		fields = append(fields, zap.String("title", truncate(t, 60)))
	}
	return fields
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
