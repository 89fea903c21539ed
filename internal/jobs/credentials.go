// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// CredentialUpdate changes stored credentials. A nil field is left alone;
// an empty string removes the value.
type CredentialUpdate struct {
	WileyToken       *string  `json:"wiley_tdm_token,omitempty"`
	ElsevierAPIKey   *string  `json:"elsevier_api_key,omitempty"`
	SpringerAPIKey   *string  `json:"springer_api_key,omitempty"`
	CrossrefMailto   *string  `json:"crossref_mailto,omitempty"`
	OpenAlexMailto   *string  `json:"openalex_mailto,omitempty"`
	UnpaywallEmail   *string  `json:"unpaywall_email,omitempty"`
	CrossrefDelay    *float64 `json:"crossref_request_delay,omitempty"`
	WileyDelay       *float64 `json:"wiley_request_delay,omitempty"`
	LicenseAllowList []string `json:"license_allowlist,omitempty"`

	// ClearExisting wipes every stored value before applying the update.
	ClearExisting bool `json:"clear_existing,omitempty"`
}

// CredentialSummary reports stored credentials without revealing them.
type CredentialSummary struct {
	StoredKeys   []string          `json:"stored_keys"`
	MaskedValues map[string]string `json:"masked_values"`
	Total        int               `json:"total"`
	LastUpdated  *time.Time        `json:"last_updated"`
}

// CredentialStore holds credentials configured at runtime. They are layered
// over the process configuration for every job submitted afterwards.
type CredentialStore struct {
	mu      sync.RWMutex
	creds   types.Credentials
	updated *time.Time
}

// Update applies u and returns the resulting summary.
func (c *CredentialStore) Update(u CredentialUpdate) CredentialSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u.ClearExisting {
		c.creds = types.Credentials{}
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&c.creds.WileyToken, u.WileyToken)
	set(&c.creds.ElsevierAPIKey, u.ElsevierAPIKey)
	set(&c.creds.SpringerAPIKey, u.SpringerAPIKey)
	set(&c.creds.CrossrefMailto, u.CrossrefMailto)
	set(&c.creds.OpenAlexMailto, u.OpenAlexMailto)
	set(&c.creds.UnpaywallEmail, u.UnpaywallEmail)
	if u.CrossrefDelay != nil {
		c.creds.CrossrefDelay = seconds(*u.CrossrefDelay)
	}
	if u.WileyDelay != nil {
		c.creds.WileyDelay = seconds(*u.WileyDelay)
	}
	if u.LicenseAllowList != nil {
		c.creds.LicenseAllowList = u.LicenseAllowList
	}

	now := time.Now().UTC()
	c.updated = &now
	return c.summaryLocked()
}

// Snapshot returns the stored credentials.
func (c *CredentialStore) Snapshot() types.Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// Summary returns the masked view of the stored credentials.
func (c *CredentialStore) Summary() CredentialSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.summaryLocked()
}

func (c *CredentialStore) summaryLocked() CredentialSummary {
	masked := c.creds.Masked()
	keys := make([]string, 0, len(masked))
	for k := range masked {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return CredentialSummary{
		StoredKeys:   keys,
		MaskedValues: masked,
		Total:        len(keys),
		LastUpdated:  c.updated,
	}
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
