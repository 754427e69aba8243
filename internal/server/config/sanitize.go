package config

import "strings"

// Sanitize returns a copy of the config with secrets masked, for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Security.AdminAllowList = append([]string(nil), cfg.Security.AdminAllowList...)

	if sanitized.Security.AdminToken != "" {
		sanitized.Security.AdminToken = maskSecret(sanitized.Security.AdminToken)
	}
	if sanitized.Backup.EncryptionPassphrase != "" {
		sanitized.Backup.EncryptionPassphrase = maskSecret(sanitized.Backup.EncryptionPassphrase)
	}
	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
