// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

package config

import (
	"net/url"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Redacted replaces secret values in printed output.
const Redacted = "[REDACTED]"

// Redact returns a copy of c with secrets masked. Empty secrets stay empty.
func (c Config) Redact() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = Redacted
		}
	}
	mask(&c.Redis.Password)
	mask(&c.JWT.Secret)
	mask(&c.Mail.Password)
	mask(&c.Storage.S3.SecretKey)
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err == nil {
			c.Database.URL = u.Redacted()
		} else {
			c.Database.URL = Redacted
		}
	}
	c.HTTP.CORSOrigins = append([]string(nil), c.HTTP.CORSOrigins...)
	return c
}

// YAML renders the redacted config.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redact())
	if err != nil {
		return nil, oops.Code("CONFIG_PRINT_FAILED").Wrap(err)
	}
	return out, nil
}
