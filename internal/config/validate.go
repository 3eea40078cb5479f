// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// SupportedVersions is the constraint a config file version must meet.
const SupportedVersions = "^1"

var validate = newValidator()

// newValidator reports fields by their koanf key.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := checkVersion(c.Version); err != nil {
		return err
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return oops.Code("CONFIG_INVALID").
				With("fields", fieldNames(fieldErrs)).
				Errorf("invalid configuration: %s", describe(fieldErrs))
		}
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if c.Tokens.Backend == BackendRedis && c.Redis.Addr == "" {
		return oops.Code("CONFIG_INVALID").
			With("fields", []string{"redis.addr"}).
			Errorf("invalid configuration: redis.addr is required when tokens.backend is redis")
	}
	return nil
}

func checkVersion(raw string) error {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return oops.Code("CONFIG_VERSION_INVALID").With("version", raw).Wrap(err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return oops.Code("CONFIG_VERSION_INVALID").Wrap(err)
	}
	if !constraint.Check(v) {
		return oops.Code("CONFIG_VERSION_UNSUPPORTED").
			With("version", raw).
			With("supported", SupportedVersions).
			Errorf("config version %s is not supported (want %s)", raw, SupportedVersions)
	}
	return nil
}

// fieldNames turns "Config.jwt.secret" into "jwt.secret".
func fieldNames(errs validator.ValidationErrors) []string {
	names := make([]string, 0, len(errs))
	for _, fe := range errs {
		names = append(names, dotted(fe.Namespace()))
	}
	return names
}

func dotted(namespace string) string {
	_, rest, ok := strings.Cut(namespace, ".")
	if !ok {
		rest = namespace
	}
	return rest
}

func describe(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s fails %s", dotted(fe.Namespace()), rule))
	}
	return strings.Join(parts, "; ")
}
