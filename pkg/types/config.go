package types

import (
	"strings"
	"time"
)

// HTTPConfig holds shared HTTP settings used by every provider client.
type HTTPConfig struct {
	// Timeout bounds streamed content downloads (PDF bodies).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MetadataTimeout bounds metadata lookups and HEAD requests. It is
	// shorter than Timeout because those responses are small.
	MetadataTimeout time.Duration `json:"metadata_timeout" yaml:"metadata_timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// Credentials holds provider credentials and per-provider tunables.
// A zero value disables every credentialed provider.
type Credentials struct {
	// WileyToken is the Wiley TDM bearer token (WILEY_TDM_TOKEN).
	WileyToken string `json:"wiley_tdm_token,omitempty" yaml:"wiley_tdm_token,omitempty" mapstructure:"wiley_tdm_token"`

	// ElsevierAPIKey is sent as X-ELS-APIKey (ELSEVIER_API_KEY).
	ElsevierAPIKey string `json:"elsevier_api_key,omitempty" yaml:"elsevier_api_key,omitempty" mapstructure:"elsevier_api_key"`

	// SpringerAPIKey is sent as the api_key query parameter (SPRINGER_API_KEY).
	SpringerAPIKey string `json:"springer_api_key,omitempty" yaml:"springer_api_key,omitempty" mapstructure:"springer_api_key"`

	// CrossrefMailto is the contact address for the Crossref polite pool.
	CrossrefMailto string `json:"crossref_mailto,omitempty" yaml:"crossref_mailto,omitempty" mapstructure:"crossref_mailto"`

	// OpenAlexMailto is the contact address for the OpenAlex polite pool.
	OpenAlexMailto string `json:"openalex_mailto,omitempty" yaml:"openalex_mailto,omitempty" mapstructure:"openalex_mailto"`

	// UnpaywallEmail is required by every Unpaywall request.
	UnpaywallEmail string `json:"unpaywall_email,omitempty" yaml:"unpaywall_email,omitempty" mapstructure:"unpaywall_email"`

	// CrossrefDelay is the courtesy delay before every Crossref call (default 3s).
	CrossrefDelay time.Duration `json:"crossref_request_delay,omitempty" yaml:"crossref_request_delay,omitempty" mapstructure:"crossref_request_delay"`

	// WileyDelay is the delay before every Wiley call (default 0).
	WileyDelay time.Duration `json:"wiley_request_delay,omitempty" yaml:"wiley_request_delay,omitempty" mapstructure:"wiley_request_delay"`

	// LicenseAllowList restricts Crossref content links to licenses whose
	// URL starts with one of these prefixes. Empty means no restriction.
	LicenseAllowList []string `json:"license_allowlist,omitempty" yaml:"license_allowlist,omitempty" mapstructure:"license_allowlist"`
}

// Masked returns the configured credential values keyed by their
// environment variable names, with all but the edges of each value hidden.
func (c Credentials) Masked() map[string]string {
	out := make(map[string]string)
	add := func(key, value string) {
		if value != "" {
			out[key] = mask(value)
		}
	}
	add("WILEY_TDM_TOKEN", c.WileyToken)
	add("ELSEVIER_API_KEY", c.ElsevierAPIKey)
	add("SPRINGER_API_KEY", c.SpringerAPIKey)
	add("CROSSREF_MAILTO", c.CrossrefMailto)
	add("OPENALEX_MAILTO", c.OpenAlexMailto)
	add("UNPAYWALL_EMAIL", c.UnpaywallEmail)
	if c.CrossrefDelay > 0 {
		out["CROSSREF_REQUEST_DELAY"] = c.CrossrefDelay.String()
	}
	if c.WileyDelay > 0 {
		out["WILEY_REQUEST_DELAY"] = c.WileyDelay.String()
	}
	if len(c.LicenseAllowList) > 0 {
		out["CROSSREF_LICENSE_ALLOWLIST"] = strings.Join(c.LicenseAllowList, ",")
	}
	return out
}

// Merge returns c with every non-zero field of override applied on top.
func (c Credentials) Merge(override Credentials) Credentials {
	pick := func(base, over string) string {
		if over != "" {
			return over
		}
		return base
	}
	c.WileyToken = pick(c.WileyToken, override.WileyToken)
	c.ElsevierAPIKey = pick(c.ElsevierAPIKey, override.ElsevierAPIKey)
	c.SpringerAPIKey = pick(c.SpringerAPIKey, override.SpringerAPIKey)
	c.CrossrefMailto = pick(c.CrossrefMailto, override.CrossrefMailto)
	c.OpenAlexMailto = pick(c.OpenAlexMailto, override.OpenAlexMailto)
	c.UnpaywallEmail = pick(c.UnpaywallEmail, override.UnpaywallEmail)
	if override.CrossrefDelay > 0 {
		c.CrossrefDelay = override.CrossrefDelay
	}
	if override.WileyDelay > 0 {
		c.WileyDelay = override.WileyDelay
	}
	if len(override.LicenseAllowList) > 0 {
		c.LicenseAllowList = override.LicenseAllowList
	}
	return c
}

func mask(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return value[:2] + "***" + value[len(value)-2:]
}

// HarvestConfig holds settings for one batch run.
type HarvestConfig struct {
	HTTPConfig `yaml:",inline"`

	// OutputDir is the root under which one directory per DOI is created.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Delay is the pause after each fully processed record.
	Delay time.Duration `json:"delay" yaml:"delay"`

	// MaxPerPublisher caps records per publisher label; 0 means no cap.
	MaxPerPublisher int `json:"max_per_publisher,omitempty" yaml:"max_per_publisher,omitempty"`

	// Overwrite forces re-download of files that already exist.
	Overwrite bool `json:"overwrite" yaml:"overwrite"`

	// DryRun reports the plan without any network I/O.
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	// FailFast stops the batch at the first record failure.
	FailFast bool `json:"fail_fast" yaml:"fail_fast"`

	// Supplements enables supplementary file discovery after each success.
	Supplements bool `json:"supplements" yaml:"supplements"`

	// MaxSupplements caps supplementary candidates per DOI (default 10).
	MaxSupplements int `json:"max_supplements,omitempty" yaml:"max_supplements,omitempty"`

	// Credentials configures the provider clients.
	Credentials Credentials `json:"-" yaml:"-"`
}
