// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/paper-harvester/internal/harvest"
	"github.com/pdiddy/paper-harvester/internal/secrets"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

const (
	defaultOutputDir       = "downloads/pdfs"
	defaultStateDir        = ".paper-harvester"
	defaultTimeout         = 120 * time.Second
	defaultMetadataTimeout = 30 * time.Second
	defaultUserAgent       = "paper-harvester/0.1"
)

// credentialEnv maps config keys to the environment variables that set them.
var credentialEnv = map[string]string{
	"credentials.wiley_tdm_token":            "WILEY_TDM_TOKEN",
	"credentials.elsevier_api_key":           "ELSEVIER_API_KEY",
	"credentials.springer_api_key":           "SPRINGER_API_KEY",
	"credentials.crossref_mailto":            "CROSSREF_MAILTO",
	"credentials.openalex_mailto":            "OPENALEX_MAILTO",
	"credentials.unpaywall_email":            "UNPAYWALL_EMAIL",
	"credentials.crossref_request_delay":     "CROSSREF_REQUEST_DELAY",
	"credentials.wiley_request_delay":        "WILEY_REQUEST_DELAY",
	"credentials.crossref_license_allowlist": "CROSSREF_LICENSE_ALLOWLIST",
}

func bindEnv() {
	viper.SetEnvPrefix("PAPER_HARVESTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for key, env := range credentialEnv {
		_ = viper.BindEnv(key, env)
	}

	viper.SetDefault("output_dir", defaultOutputDir)
	viper.SetDefault("state_dir", defaultStateDir)
	viper.SetDefault("delay", harvest.DefaultDelay.Seconds())
	viper.SetDefault("timeout", defaultTimeout)
	viper.SetDefault("metadata_timeout", defaultMetadataTimeout)
	viper.SetDefault("user_agent", defaultUserAgent)
	viper.SetDefault("supplements", true)
}

// seconds reads a key holding a number of seconds.
func seconds(key string) time.Duration {
	return time.Duration(viper.GetFloat64(key) * float64(time.Second))
}

// allowList accepts either a YAML list or a comma-separated string.
func allowList() []string {
	const key = "credentials.crossref_license_allowlist"
	var out []string
	if s := viper.GetString(key); s != "" {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return viper.GetStringSlice(key)
}

// loadCredentials folds config, environment, and secrets files together.
// Config and environment win over key files.
func loadCredentials() types.Credentials {
	creds := types.Credentials{
		WileyToken:       viper.GetString("credentials.wiley_tdm_token"),
		ElsevierAPIKey:   viper.GetString("credentials.elsevier_api_key"),
		SpringerAPIKey:   viper.GetString("credentials.springer_api_key"),
		CrossrefMailto:   viper.GetString("credentials.crossref_mailto"),
		OpenAlexMailto:   viper.GetString("credentials.openalex_mailto"),
		UnpaywallEmail:   viper.GetString("credentials.unpaywall_email"),
		CrossrefDelay:    seconds("credentials.crossref_request_delay"),
		WileyDelay:       seconds("credentials.wiley_request_delay"),
		LicenseAllowList: allowList(),
	}
	return secrets.Fill(creds, loadedSecrets)
}

// baseConfig builds the harvest configuration from config and environment.
// Commands overlay their own flags on the result.
func baseConfig() types.HarvestConfig {
	return types.HarvestConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:         viper.GetDuration("timeout"),
			MetadataTimeout: viper.GetDuration("metadata_timeout"),
			UserAgent:       viper.GetString("user_agent"),
		},
		OutputDir:      viper.GetString("output_dir"),
		Delay:          seconds("delay"),
		Supplements:    viper.GetBool("supplements"),
		MaxSupplements: viper.GetInt("max_supplements"),
		Credentials:    loadCredentials(),
	}
}
