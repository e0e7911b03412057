// Package config loads the process-wide Config (C10) from environment
// variables and flags using viper, mirroring the teacher's
// env-plus-flags-plus-defaults configuration idiom.
package config

import (
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pkg/errors"
)

const envPrefix = "QCERT"

// Config is the typed configuration the pipeline and CA manager are
// constructed with (spec.md §6's enumerated options plus ambient additions).
type Config struct {
	IssuerDomain  string
	PfxPassphrase string
	ArtifactPath  string

	ResponseSigning   bool
	RequestValidation bool

	ForwardedPathHeaderName                string
	RequestSignatureCertificateHeaderName  string
	ResponseSignatureCertificateHeaderName string
	RequestCreatedHeaderName               string
	ResponseCreatedHeaderName              string
	ResponseIDHeaderName                   string

	MaxBodyBytes          int64
	KeySize               int
	CRLNextUpdateInterval time.Duration
}

// defaults mirrors the teacher's pattern of seeding a viper instance with
// zero-value-safe defaults before binding env vars, so an unset option never
// surfaces as a Go zero value the caller has to special-case.
func defaults(v *viper.Viper) {
	v.SetDefault("response_signing", true)
	v.SetDefault("request_validation", true)
	v.SetDefault("forwarded_path_header_name", "x-forwarded-path")
	v.SetDefault("request_signature_certificate_header_name", "x-signature-certificate")
	v.SetDefault("response_signature_certificate_header_name", "x-signature-certificate")
	v.SetDefault("request_created_header_name", "x-request-created")
	v.SetDefault("response_created_header_name", "x-response-created")
	v.SetDefault("response_id_header_name", "x-response-id")
	v.SetDefault("max_body_bytes", "10MiB")
	v.SetDefault("key_size", 2048)
	v.SetDefault("crl_next_update_interval", "168h")
	v.SetDefault("pfx_passphrase", "")
	v.SetDefault("path", "")
}

// Load builds a Config from the environment (prefix QCERT_) and, if
// non-nil, a flag set already parsed by the caller. Validated once at
// construction per SPEC_FULL.md §4.10 — never re-read mid-request.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errors.Wrap(err, "failed to bind flags to configuration")
		}
	}

	maxBody, err := cast.ToInt64E(humanBytes(v.GetString("max_body_bytes")))
	if err != nil {
		return nil, errors.Wrap(err, "invalid max_body_bytes")
	}

	cfg := &Config{
		IssuerDomain:                            v.GetString("issuer_domain"),
		PfxPassphrase:                           v.GetString("pfx_passphrase"),
		ArtifactPath:                            v.GetString("path"),
		ResponseSigning:                         v.GetBool("response_signing"),
		RequestValidation:                       v.GetBool("request_validation"),
		ForwardedPathHeaderName:                 v.GetString("forwarded_path_header_name"),
		RequestSignatureCertificateHeaderName:   v.GetString("request_signature_certificate_header_name"),
		ResponseSignatureCertificateHeaderName:  v.GetString("response_signature_certificate_header_name"),
		RequestCreatedHeaderName:                v.GetString("request_created_header_name"),
		ResponseCreatedHeaderName:               v.GetString("response_created_header_name"),
		ResponseIDHeaderName:                    v.GetString("response_id_header_name"),
		MaxBodyBytes:                            maxBody,
		KeySize:                                 v.GetInt("key_size"),
		CRLNextUpdateInterval:                   v.GetDuration("crl_next_update_interval"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IssuerDomain == "" {
		return errors.New("issuer_domain is required")
	}
	switch c.KeySize {
	case 2048, 3072, 4096:
	default:
		return errors.Errorf("key_size must be one of 2048, 3072, 4096, got %d", c.KeySize)
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max_body_bytes must be positive")
	}
	return nil
}

// humanBytes expands the small set of human-readable byte-size suffixes the
// teacher's config surface tolerates ("10MiB", "512KiB"); plain digit
// strings pass through untouched for cast to parse.
func humanBytes(s string) string {
	units := []struct {
		suffix string
		mult   int64
	}{
		{"GiB", 1 << 30},
		{"MiB", 1 << 20},
		{"KiB", 1 << 10},
	}
	for _, u := range units {
		if n := len(s) - len(u.suffix); n > 0 && s[n:] == u.suffix {
			val, err := cast.ToInt64E(s[:n])
			if err != nil {
				return s
			}
			return cast.ToString(val * u.mult)
		}
	}
	return s
}
