package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// requiredSections must be present in every config file
var requiredSections = []string{"server", "login", "issuer", "bridge"}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes validates config structure without resolving env vars
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
		})
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("version field is required. Hint: Add \"version\": %q", Version),
		})
	} else if !strings.HasPrefix(version, Version) {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("unsupported version '%s' - use '%s' or '%s-<variant>'", version, Version, Version),
		})
	}

	for _, section := range requiredSections {
		if _, ok := rawConfig[section].(map[string]any); !ok {
			result.Errors = append(result.Errors, ValidationError{
				Path:    section,
				Message: fmt.Sprintf("%s section is required", section),
			})
		}
	}

	for section, fields := range secretFields {
		values, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, field := range fields {
			value, exists := values[field]
			if !exists {
				continue
			}
			if verr := validateEnvVarReference(value, field, section+"."+field); verr != nil {
				result.Errors = append(result.Errors, *verr)
			}
		}
	}

	if issuer, ok := rawConfig["issuer"].(map[string]any); ok {
		validateIssuerStructure(issuer, result)
	}
	if bridge, ok := rawConfig["bridge"].(map[string]any); ok {
		validateBridgeStructure(bridge, result)
	}

	return result
}

func validateIssuerStructure(issuer map[string]any, result *ValidationResult) {
	kind, _ := issuer["kind"].(string)
	switch IssuerKind(kind) {
	case IssuerKindLocal:
		if _, ok := issuer["signingKey"]; !ok {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "issuer.signingKey",
				Message: "signingKey is required for the local issuer",
			})
		}
		templates, _ := issuer["templates"].(map[string]any)
		if len(templates) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "issuer.templates",
				Message: "at least one template is required for the local issuer",
			})
		}
	case IssuerKindRemote:
		for _, field := range []string{"endpoint", "secretKey"} {
			if _, ok := issuer[field]; !ok {
				result.Errors = append(result.Errors, ValidationError{
					Path:    "issuer." + field,
					Message: field + " is required for the remote issuer",
				})
			}
		}
	default:
		result.Errors = append(result.Errors, ValidationError{
			Path:    "issuer.kind",
			Message: fmt.Sprintf("kind must be 'local' or 'remote', got %q", kind),
		})
	}
}

// validateBridgeStructure checks the bridge timing configuration
func validateBridgeStructure(bridge map[string]any, result *ValidationResult) {
	idle, hasIdle := bridge["idleTimeout"].(string)
	cleanup, hasCleanup := bridge["cleanupInterval"].(string)

	for field, value := range map[string]any{
		"idleTimeout":     bridge["idleTimeout"],
		"cleanupInterval": bridge["cleanupInterval"],
		"acquireTimeout":  bridge["acquireTimeout"],
	} {
		s, ok := value.(string)
		if !ok {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "bridge." + field,
				Message: fmt.Sprintf("invalid duration %q. Hint: use Go duration syntax like \"30s\" or \"5m\"", s),
			})
		}
	}

	// Only compare if both are present
	if hasIdle && hasCleanup {
		idleDur, err1 := time.ParseDuration(idle)
		cleanupDur, err2 := time.ParseDuration(cleanup)
		if err1 == nil && err2 == nil && cleanupDur > idleDur {
			result.Warnings = append(result.Warnings, ValidationError{
				Path: "bridge",
				Message: fmt.Sprintf(
					"cleanupInterval (%s) is longer than idleTimeout (%s). Idle bridges will remain in memory until cleanup runs.",
					cleanup, idle,
				),
			})
		}
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, matches[1]),
			}
		}
		// Never echo the plain value back, it is a secret
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.Warnings = append(result.Warnings, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName),
			})
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
