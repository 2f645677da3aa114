package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the global validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	validate.RegisterValidation("env", validateEnvironment)
	validate.RegisterStructValidation(validateEmbedding, EmbeddingConfig{})
	validate.RegisterStructValidation(validateMetadataStorage, MetadataStorageConfig{})
	validate.RegisterStructValidation(validateVectorStorage, VectorStorageConfig{})
}

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidateWithDetails performs validation and returns detailed errors.
func ValidateWithDetails(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var details ValidationErrors
			for _, fe := range validationErrors {
				details = append(details, ConfigError{
					Field:   fe.Namespace(),
					Message: formatValidationError(fe),
					Value:   fe.Value(),
				})
			}
			return details
		}
		return err
	}
	return nil
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "required_for":
		return fmt.Sprintf("this field is required when %s is selected", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "env":
		return "must be one of [development staging production]"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// validateEnvironment is a custom validator for environment values.
func validateEnvironment(fl validator.FieldLevel) bool {
	env := fl.Field().String()
	validEnvs := []string{"development", "staging", "production"}
	for _, valid := range validEnvs {
		if env == valid {
			return true
		}
	}
	return false
}

// validateEmbedding checks fields each provider cannot run without.
func validateEmbedding(sl validator.StructLevel) {
	e := sl.Current().Interface().(EmbeddingConfig)
	switch e.Provider {
	case "openai":
		if e.APIKey == "" {
			sl.ReportError(e.APIKey, "APIKey", "api_key", "required_for", e.Provider)
		}
	case "custom":
		if e.Custom.URL == "" {
			sl.ReportError(e.Custom.URL, "Custom.URL", "url", "required_for", e.Provider)
		}
	}
}

func validateMetadataStorage(sl validator.StructLevel) {
	m := sl.Current().Interface().(MetadataStorageConfig)
	switch m.Type {
	case "sqlite":
		if m.SQLite.Path == "" {
			sl.ReportError(m.SQLite.Path, "SQLite.Path", "path", "required_for", m.Type)
		}
	case "postgres":
		if m.Postgres.DSN == "" {
			sl.ReportError(m.Postgres.DSN, "Postgres.DSN", "dsn", "required_for", m.Type)
		}
	case "badger":
		if m.Badger.Path == "" {
			sl.ReportError(m.Badger.Path, "Badger.Path", "path", "required_for", m.Type)
		}
	case "redis":
		if m.Redis.Address == "" {
			sl.ReportError(m.Redis.Address, "Redis.Address", "address", "required_for", m.Type)
		}
	}
}

func validateVectorStorage(sl validator.StructLevel) {
	v := sl.Current().Interface().(VectorStorageConfig)
	if v.Type == "qdrant" && v.Qdrant.URL == "" {
		sl.ReportError(v.Qdrant.URL, "Qdrant.URL", "url", "required_for", v.Type)
	}
}
