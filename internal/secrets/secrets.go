// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads provider credentials from a directory of plain-text
// files. Each file holds one secret: the filename is the key name and the
// trimmed contents are the value.
//
// Supported key files: wiley-tdm-token, elsevier-api-key, springer-api-key,
// crossref-mailto, openalex-mailto, unpaywall-email.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

// Key file names.
const (
	WileyToken     = "wiley-tdm-token"
	ElsevierAPIKey = "elsevier-api-key"
	SpringerAPIKey = "springer-api-key"
	CrossrefMailto = "crossref-mailto"
	OpenAlexMailto = "openalex-mailto"
	UnpaywallEmail = "unpaywall-email"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged as warnings and skipped.
func Load(dir string, logger zerolog.Logger) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn().Err(err).Str("secret", name).Msg("could not read secret")
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Fill sets every empty credential in creds from the matching key file.
// Values already configured elsewhere win.
func Fill(creds types.Credentials, secrets map[string]string) types.Credentials {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = secrets[key]
		}
	}
	fill(&creds.WileyToken, WileyToken)
	fill(&creds.ElsevierAPIKey, ElsevierAPIKey)
	fill(&creds.SpringerAPIKey, SpringerAPIKey)
	fill(&creds.CrossrefMailto, CrossrefMailto)
	fill(&creds.OpenAlexMailto, OpenAlexMailto)
	fill(&creds.UnpaywallEmail, UnpaywallEmail)
	return creds
}
