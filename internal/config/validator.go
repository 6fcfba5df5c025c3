package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance.
var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg ServerConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.EnableRateLimiting && cfg.RateLimitKeyPrefix == "" {
		return fmt.Errorf("rate_limit_key_prefix: must not be empty when rate limiting is enabled")
	}
	if cfg.EnableCache && cfg.CacheKeyPrefix == "" {
		return fmt.Errorf("cache_key_prefix: must not be empty when caching is enabled")
	}

	return nil
}

// formatValidationError converts validator errors into a readable message.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
