package app

import (
	"fmt"
	"time"

	"taskdeck/pkg/config"
	"taskdeck/pkg/logger"
)

// validateConfig checks the effective config for values that would make
// the server unusable and warns about risky but workable settings.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.Config == nil {
		return fmt.Errorf("no configuration loaded")
	}
	if eff.DBPath == "" {
		return fmt.Errorf("database path is required (--db or TASKDECK_DB_PATH)")
	}
	sec := eff.Config.Security
	if sec.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (security.jwt.secret or TASKDECK_JWT_SECRET)")
	}
	if len(sec.JWT.Secret) < 16 {
		logger.Warn("jwt_secret_short", "len", len(sec.JWT.Secret))
	}
	if ttl := time.Duration(sec.JWT.TTL); ttl < 0 {
		return fmt.Errorf("jwt ttl must not be negative")
	}
	tls := eff.Config.Server.TLS
	if (tls.CertFile == "") != (tls.KeyFile == "") {
		return fmt.Errorf("tls requires both cert_file and key_file")
	}
	if eff.Config.Chat.APIKey == "" {
		logger.Warn("chat_api_key_missing", "msg", "chat endpoints will return a configuration error")
	}
	if eff.Config.Retention.Enabled && eff.Config.Retention.Period == "" {
		return fmt.Errorf("retention.period is required when retention is enabled")
	}
	return nil
}
