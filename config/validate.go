package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Value != "" {
		return fmt.Sprintf("%s: %s (value: %q)", ve.Field, ve.Message, ve.Value)
	}
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ves ValidationErrors) Error() string {
	if len(ves) == 0 {
		return ""
	}
	if len(ves) == 1 {
		return ves[0].Error()
	}

	var messages []string
	for _, ve := range ves {
		messages = append(messages, ve.Error())
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; "))
}

// requiredSections are the top-level sections every environment document
// must carry.
var requiredSections = []string{
	"server", "database", "api_services", "auth", "logging",
	"cache", "web_socket", "feature_flags", "monitoring", "deployment",
}

// insecureMarkers are placeholder values that must never reach production.
var insecureMarkers = []string{"default", "example", "change-in-production"}

type sensitiveLeaf struct {
	path  string
	value string
}

// sensitiveLeaves enumerates the fields covered by the production
// insecure-value rule.
func sensitiveLeaves(cfg *EnvironmentConfig) []sensitiveLeaf {
	leaves := []sensitiveLeaf{
		{"database.password", cfg.Database.Password},
		{"auth.jwt_secret", cfg.Auth.JWTSecret},
		{"auth.session_secret", cfg.Auth.SessionSecret},
		{"cache.redis_password", cfg.Cache.RedisPassword},
	}
	for name, svc := range cfg.APIServices {
		leaves = append(leaves, sensitiveLeaf{
			path:  fmt.Sprintf("api_services.%s.api_key", name),
			value: svc.APIKey,
		})
	}
	return leaves
}

// newEnvValidator builds the struct validator for environment documents.
func newEnvValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "debug", "info", "warn", "error":
			return true
		}
		return false
	})
	return v
}

// structural requirements checked on every environment, not just production.
type envSchema struct {
	ServerHost   string `validate:"required"`
	ServerPort   int    `validate:"required,min=1,max=65535"`
	DatabaseURI  string `validate:"required"`
	DatabaseName string `validate:"required"`
	LogLevel     string `validate:"required,log_level"`
	Bucket       string `validate:"required"`
	Region       string `validate:"required"`
}

// ValidateEnvironment checks the environment document: required top-level
// sections for every environment, plus the production hardening rules
// (no empty or placeholder sensitive values, secure cookies, log level
// restricted to info/warn). The raw document is consulted for section
// presence so an omitted section is not hidden by struct zero values.
func ValidateEnvironment(env Environment, raw []byte, cfg *EnvironmentConfig) ValidationErrors {
	var errs ValidationErrors

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return ValidationErrors{{Field: string(env), Message: fmt.Sprintf("invalid YAML: %v", err)}}
	}
	for _, section := range requiredSections {
		if _, ok := doc[section]; !ok {
			errs = append(errs, ValidationError{Field: section, Message: "required section missing"})
		}
	}

	v := newEnvValidator()
	schema := envSchema{
		ServerHost:   cfg.Server.Host,
		ServerPort:   cfg.Server.Port,
		DatabaseURI:  cfg.Database.URI,
		DatabaseName: cfg.Database.Name,
		LogLevel:     cfg.Logging.Level,
		Bucket:       cfg.Deployment.Bucket,
		Region:       cfg.Deployment.Region,
	}
	if err := v.Struct(schema); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, ValidationError{
					Field:   schemaFieldPath(fe.StructField()),
					Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
				})
			}
		}
	}

	if env == Production {
		errs = append(errs, validateProductionHardening(cfg)...)
	}

	return errs
}

func schemaFieldPath(field string) string {
	paths := map[string]string{
		"ServerHost":   "server.host",
		"ServerPort":   "server.port",
		"DatabaseURI":  "database.uri",
		"DatabaseName": "database.name",
		"LogLevel":     "logging.level",
		"Bucket":       "deployment.bucket",
		"Region":       "deployment.region",
	}
	if p, ok := paths[field]; ok {
		return p
	}
	return field
}

func validateProductionHardening(cfg *EnvironmentConfig) ValidationErrors {
	var errs ValidationErrors

	for _, leaf := range sensitiveLeaves(cfg) {
		if leaf.value == "" {
			errs = append(errs, ValidationError{Field: leaf.path, Message: "sensitive field is empty"})
			continue
		}
		lower := strings.ToLower(leaf.value)
		for _, marker := range insecureMarkers {
			if strings.Contains(lower, marker) {
				errs = append(errs, ValidationError{
					Field:   leaf.path,
					Message: fmt.Sprintf("sensitive field contains placeholder %q", marker),
				})
				break
			}
		}
	}

	if !cfg.Auth.CookieSecure {
		errs = append(errs, ValidationError{Field: "auth.cookie_secure", Message: "session cookies must be marked secure in production"})
	}
	switch cfg.Logging.Level {
	case "info", "warn":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "production log level must be info or warn",
			Value:   cfg.Logging.Level,
		})
	}

	return errs
}
