package cliutil

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var (
	templateVarPattern = regexp.MustCompile(`\$\{[^}]+\}`)
	secretKeyPattern   = regexp.MustCompile(`(?i)\b(` + strings.Join(escapedSecretKeys(), "|") + `)\b(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
)

var secretKeyNames = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"DATABASE_PASSWORD",
	"DB_PASSWORD",
	"POSTGRES_PASSWORD",
	"REDIS_PASSWORD",
	"API_KEY",
	"ACCESS_TOKEN",
	"REFRESH_TOKEN",
	"CLIENT_SECRET",
}

var secretKeySuffixes = []string{
	"_TOKEN",
	"_SECRET",
	"_PASSWORD",
	"_PASSPHRASE",
	"_API_KEY",
	"_ACCESS_KEY",
	"_PRIVATE_KEY",
}

func escapedSecretKeys() []string {
	escaped := make([]string, len(secretKeyNames))
	for i, key := range secretKeyNames {
		escaped[i] = regexp.QuoteMeta(key)
	}
	return escaped
}

// RedactSecrets masks ${VAR} style template references and known secret key
// assignments in a line of text so tailed log output can be shown without
// leaking credentials.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	redacted := templateVarPattern.ReplaceAllStringFunc(message, func(match string) string {
		return "${" + redactedPlaceholder + "}"
	})
	return secretKeyPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
}

// SecretEnvKey reports whether an environment variable name looks like it
// holds a credential.
func SecretEnvKey(key string) bool {
	upper := strings.ToUpper(strings.TrimSpace(key))
	for _, name := range secretKeyNames {
		if upper == name {
			return true
		}
	}
	for _, suffix := range secretKeySuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// RedactEnv returns a copy of env with credential-looking values masked.
// Non-secret entries are passed through untouched.
func RedactEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for key, value := range env {
		if SecretEnvKey(key) {
			out[key] = redactedPlaceholder
		} else {
			out[key] = value
		}
	}
	return out
}
