package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags, then the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Server.Socks5 != "" {
		u, err := url.Parse(cfg.Server.Socks5)
		if err != nil {
			return fmt.Errorf("server.socks5: %w", err)
		}
		if u.Scheme != "socks5" && u.Scheme != "socks5h" {
			return fmt.Errorf("server.socks5: unsupported scheme %q", u.Scheme)
		}
	}

	if cfg.Auth.Password != "" && cfg.Auth.Username == "" {
		return errors.New("auth: password set without username")
	}

	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
