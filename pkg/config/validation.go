// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterValidation("canister", func(fl validator.FieldLevel) bool {
		_, err := types.ParseCanisterID(fl.Field().String())
		return err == nil
	})
}

// Validate checks cfg against its struct tags and the rules tags cannot
// express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if _, err := cfg.Encodings(); err != nil {
		return fmt.Errorf("upload.encodings: %w", err)
	}
	if cfg.Replica.Store.Type == "s3" && cfg.Replica.Store.S3.Bucket == "" {
		return errors.New("replica.store.s3.bucket: required when replica.store.type is s3")
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
