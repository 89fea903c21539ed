// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-harvester/internal/httputil"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

var fakePDF = []byte("%PDF-1.4 fake content")

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

// testConfig returns a config with every credential set and throttles short
// enough for tests.
func testConfig() types.HarvestConfig {
	return types.HarvestConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second, MetadataTimeout: 5 * time.Second},
		Credentials: types.Credentials{
			WileyToken:     "wiley-token",
			ElsevierAPIKey: "els-key",
			SpringerAPIKey: "spr-key",
			CrossrefMailto: "me@example.org",
			OpenAlexMailto: "me@example.org",
			UnpaywallEmail: "me@example.org",
			CrossrefDelay:  time.Millisecond,
		},
	}
}

// countingServer wraps h and counts every request it sees.
func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var n int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&n, 1)
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts, &n
}

func servePDF(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(fakePDF)
}

func TestFetchErrorChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(newError(NameWiley, KindHTTP, cause, "GET %s", "/x"))

	assert.True(t, errors.Is(err, ErrDownloadFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindHTTP, KindOf(err))
	assert.Equal(t, "wiley: GET /x: connection reset", err.Error())

	wrapped := errors.Join(errors.New("outer"), err)
	assert.Equal(t, KindHTTP, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestKindRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
		name string
	}{
		{KindHTTP, true, "http"},
		{KindConfig, false, "config"},
		{KindNoContent, false, "no_content"},
		{KindLicenseRejected, false, "license_rejected"},
		{KindNotOpenAccess, false, "not_open_access"},
		{KindSubscriptionWall, false, "subscription_wall"},
		{KindUnknown, false, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Retryable())
			assert.Equal(t, tt.name, tt.kind.String())
		})
	}
}

func TestConstructorsRequireCredentials(t *testing.T) {
	empty := types.HarvestConfig{}
	tests := []struct {
		name   string
		newFn  func(types.HarvestConfig) error
		envKey string
	}{
		{NameWiley, func(c types.HarvestConfig) error { _, err := NewWiley(c); return err }, "WILEY_TDM_TOKEN"},
		{NameElsevier, func(c types.HarvestConfig) error { _, err := NewElsevier(c); return err }, "ELSEVIER_API_KEY"},
		{NameSpringer, func(c types.HarvestConfig) error { _, err := NewSpringer(c); return err }, "SPRINGER_API_KEY"},
		{NameCrossref, func(c types.HarvestConfig) error { _, err := NewCrossref(c); return err }, "CROSSREF_MAILTO"},
		{NameOpenAlex, func(c types.HarvestConfig) error { _, err := NewOpenAlex(c); return err }, "OPENALEX_MAILTO"},
		{NameUnpaywall, func(c types.HarvestConfig) error { _, err := NewUnpaywall(c); return err }, "UNPAYWALL_EMAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.newFn(empty)
			require.Error(t, err)
			assert.Equal(t, KindConfig, KindOf(err))
			assert.Contains(t, err.Error(), tt.envKey)

			assert.NoError(t, tt.newFn(testConfig()))
		})
	}
}

func TestWriteAtomicLeavesNoTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "article.pdf")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	ts, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) { servePDF(w) })
	b := newBase("test", types.HTTPConfig{}, 0, false)
	require.NoError(t, b.fetchFile(t.Context(), ts.URL+"/a.pdf", nil, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, fakePDF, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetchFileFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "sub", "article.pdf")

	ts, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	b := newBase("test", types.HTTPConfig{}, 0, false)
	err := b.fetchFile(t.Context(), ts.URL+"/a.pdf", nil, dest)
	require.Error(t, err)
	assert.Equal(t, KindHTTP, KindOf(err))
	assert.Contains(t, err.Error(), "HTTP 500")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	entries, _ := os.ReadDir(filepath.Join(dir, "sub"))
	assert.Empty(t, entries)
}

func TestFetchFileRejectsNonPDF(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantErr     bool
	}{
		{"pdf", "application/pdf", "%PDF-1.7 body", false},
		{"octet stream with marker", "application/octet-stream", "%PDF-1.5 body", false},
		{"marker after preamble", "binary/octet-stream", "\r\n%PDF-1.4 body", false},
		{"declared pdf", "application/pdf", "not sniffable", false},
		{"html interstitial", "text/html; charset=utf-8", "<html>Please log in</html>", true},
		{"empty body", "application/pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.Write([]byte(tt.body))
			})
			dest := filepath.Join(t.TempDir(), "article.pdf")
			b := newBase("test", types.HTTPConfig{}, 0, false)
			err := b.fetchFile(t.Context(), ts.URL+"/a", nil, dest)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.FileExists(t, dest)
				return
			}
			require.Error(t, err)
			assert.Equal(t, KindNoContent, KindOf(err))
			assert.NoFileExists(t, dest)
		})
	}
}

func TestStatusErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		premium bool
		status  int
		want    Kind
	}{
		{"premium 403", true, http.StatusForbidden, KindSubscriptionWall},
		{"premium 402", true, http.StatusPaymentRequired, KindSubscriptionWall},
		{"open 403", false, http.StatusForbidden, KindHTTP},
		{"404", false, http.StatusNotFound, KindNoContent},
		{"premium 404", true, http.StatusNotFound, KindNoContent},
		{"503", false, http.StatusServiceUnavailable, KindHTTP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBase("test", types.HTTPConfig{}, 0, tt.premium)
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			fe := b.statusError(req, tt.status, "")
			assert.Equal(t, tt.want, fe.Kind)
		})
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"", "a", " a ", "b", "a", "  "})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0, 20, 100))
	assert.Equal(t, 100, clampLimit(500, 20, 100))
	assert.Equal(t, 7, clampLimit(7, 20, 100))
}
