// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-harvester/internal/doi"
	"github.com/pdiddy/paper-harvester/internal/provider"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

// fakeProvider writes a small file on success, or creates the article
// directory and returns err, the way a real client fails mid-transfer.
type fakeProvider struct {
	name  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Download(_ context.Context, rec types.ArticleRecord, dest string, overwrite bool) (string, error) {
	f.calls++
	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			return dest, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	return dest, os.WriteFile(dest, []byte("%PDF "+f.name), 0o644)
}

func fetchErr(name string, kind provider.Kind, reason string) error {
	return &provider.FetchError{Provider: name, Kind: kind, Reason: reason}
}

type fakeFinder struct {
	calls []string
	files []string
}

func (f *fakeFinder) Discover(_ context.Context, d, primary string, _ bool) []string {
	f.calls = append(f.calls, d)
	dir := filepath.Dir(primary)
	var out []string
	for _, name := range f.files {
		p := filepath.Join(dir, name)
		os.WriteFile(p, []byte("%PDF supp"), 0o644)
		out = append(out, p)
	}
	return out
}

func testOptions(t *testing.T) Options {
	return Options{OutputDir: t.TempDir()}
}

// newTestOrchestrator disables pacing and counts sleeps.
func newTestOrchestrator(reg *Registry, opts Options, options ...Option) (*Orchestrator, *[]time.Duration) {
	o := New(reg, opts, zerolog.Nop(), options...)
	var sleeps []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return o, &sleeps
}

func collect(s *Stream) []string {
	return slices.Collect(s.Paths())
}

func TestEndToEndOnlyWileyConfigured(t *testing.T) {
	records := doi.Records([]string{"10.1002/example", "10.1016/example", "10.5555/example"})
	cfg := types.HarvestConfig{Credentials: types.Credentials{WileyToken: "token"}}

	reg := Build(cfg, Labels(records), zerolog.Nop())
	require.Len(t, reg.Chain(types.PublisherWiley), 1)
	assert.Empty(t, reg.Chain(types.PublisherElsevier))
	assert.Empty(t, reg.Chain(types.PublisherCrossref))

	wiley := &fakeProvider{name: provider.NameWiley}
	reg.Set(types.PublisherWiley, wiley)

	opts := testOptions(t)
	o, _ := newTestOrchestrator(reg, opts)
	s := o.Run(t.Context(), records)
	paths := collect(s)

	slug := doi.Slug("10.1002/example")
	assert.Equal(t, []string{filepath.Join(opts.OutputDir, slug, slug+".pdf")}, paths)
	assert.Equal(t, types.Metrics{"Wiley": {Attempted: 1, Succeeded: 1}}, s.Metrics())
	assert.NoError(t, s.Err())

	failures := s.Failures()
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.True(t, f.Skipped)
		assert.Contains(t, f.Reason(), "no configured provider")
	}
	assert.Equal(t, "10.1016/example", failures[0].Record.DOI)
	assert.Equal(t, "10.5555/example", failures[1].Record.DOI)

	entries, _ := os.ReadDir(opts.OutputDir)
	assert.Len(t, entries, 1)
}

func TestBuildChains(t *testing.T) {
	tests := []struct {
		name  string
		creds types.Credentials
		want  []string
	}{
		{"all open providers", types.Credentials{OpenAlexMailto: "a@b", UnpaywallEmail: "a@b", CrossrefMailto: "a@b"},
			[]string{provider.NameOpenAlex, provider.NameUnpaywall, provider.NameCrossref}},
		{"crossref only", types.Credentials{CrossrefMailto: "a@b"}, []string{provider.NameCrossref}},
		{"aggregator only", types.Credentials{UnpaywallEmail: "a@b"}, []string{provider.NameUnpaywall}},
		{"none", types.Credentials{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := Build(types.HarvestConfig{Credentials: tt.creds}, []types.Publisher{types.PublisherCrossref}, zerolog.Nop())
			var got []string
			for _, p := range reg.Chain(types.PublisherCrossref) {
				got = append(got, p.Name())
			}
			assert.Equal(t, tt.want, got)

			reason, disabled := reg.Disabled(types.PublisherCrossref)
			assert.Equal(t, tt.want == nil, disabled)
			if disabled {
				assert.Contains(t, reason, "OPENALEX_MAILTO")
				assert.Contains(t, reason, "CROSSREF_MAILTO")
			}
		})
	}
}

func TestBuildOnlyConstructsNeededLabels(t *testing.T) {
	reg := Build(types.HarvestConfig{}, []types.Publisher{types.PublisherWiley, types.PublisherWiley}, zerolog.Nop())
	disabled := reg.DisabledLabels()
	assert.Len(t, disabled, 1)
	assert.Contains(t, disabled[types.PublisherWiley], "WILEY_TDM_TOKEN")
}

func TestFallbackSecondProviderWins(t *testing.T) {
	first := &fakeProvider{name: "first", err: fetchErr("first", provider.KindNotOpenAccess, "closed")}
	second := &fakeProvider{name: "second"}
	reg := NewRegistry()
	reg.Set(types.PublisherCrossref, first, second)

	o, _ := newTestOrchestrator(reg, testOptions(t))
	s := o.Run(t.Context(), doi.Records([]string{"10.5555/y"}))
	paths := collect(s)

	require.Len(t, paths, 1)
	data, _ := os.ReadFile(paths[0])
	assert.Equal(t, "%PDF second", string(data))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Empty(t, s.Failures())
	assert.Equal(t, types.ProviderStats{Attempted: 1, Succeeded: 1}, s.Metrics()["Crossref"])
}

func TestFallbackBothFailReportedOnce(t *testing.T) {
	first := &fakeProvider{name: "first", err: fetchErr("first", provider.KindNoContent, "no link")}
	second := &fakeProvider{name: "second", err: fetchErr("second", provider.KindHTTP, "HTTP 500")}
	reg := NewRegistry()
	reg.Set(types.PublisherCrossref, first, second)

	opts := testOptions(t)
	o, _ := newTestOrchestrator(reg, opts)
	s := o.Run(t.Context(), doi.Records([]string{"10.5555/y"}))
	assert.Empty(t, collect(s))

	failures := s.Failures()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Reason(), "first: no link")
	assert.Contains(t, failures[0].Reason(), "second: HTTP 500")
	assert.NotContains(t, failures[0].Reason(), "\n")
	assert.True(t, errors.Is(failures[0].Err, provider.ErrDownloadFailed))
	assert.Equal(t, types.ProviderStats{Attempted: 1}, s.Metrics()["Crossref"])

	entries, _ := os.ReadDir(opts.OutputDir)
	assert.Empty(t, entries, "empty article directory should be removed")
}

func TestSubscriptionWallShortCircuits(t *testing.T) {
	wall := &fakeProvider{name: "wall", err: fetchErr("wall", provider.KindSubscriptionWall, "HTTP 403")}
	next := &fakeProvider{name: "next"}
	reg := NewRegistry()
	reg.Set(types.PublisherElsevier, wall, next)

	opts := testOptions(t)
	opts.FailFast = true
	o, _ := newTestOrchestrator(reg, opts)
	s := o.Run(t.Context(), doi.Records([]string{"10.1016/a", "10.1016/b"}))
	assert.Empty(t, collect(s))

	assert.Equal(t, 0, next.calls)
	assert.Equal(t, 2, wall.calls)
	assert.NoError(t, s.Err())
	for _, f := range s.Failures() {
		assert.True(t, f.Skipped)
		assert.Equal(t, provider.KindSubscriptionWall, f.Kind)
	}
}

func TestFailFastStopsStream(t *testing.T) {
	bad := &fakeProvider{name: "bad", err: fetchErr("bad", provider.KindHTTP, "HTTP 500")}
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, bad)

	opts := testOptions(t)
	opts.FailFast = true
	o, _ := newTestOrchestrator(reg, opts)
	s := o.Run(t.Context(), doi.Records([]string{"10.1002/a", "10.1002/b"}))
	assert.Empty(t, collect(s))

	assert.Equal(t, 1, bad.calls)
	var ffe *FailFastError
	require.ErrorAs(t, s.Err(), &ffe)
	assert.Equal(t, "10.1002/a", ffe.Outcome.Record.DOI)
	assert.Equal(t, provider.KindHTTP, provider.KindOf(s.Err()))
}

// cancellingProvider cancels the run while downloading record cancelAt,
// failing the way an aborted HTTP request does.
type cancellingProvider struct {
	fakeProvider
	cancel   context.CancelFunc
	cancelAt int
}

func (c *cancellingProvider) Download(ctx context.Context, rec types.ArticleRecord, dest string, overwrite bool) (string, error) {
	if c.calls == c.cancelAt {
		c.calls++
		c.cancel()
		return "", &provider.FetchError{Provider: c.name, Kind: provider.KindHTTP, Reason: "GET", Err: ctx.Err()}
	}
	return c.fakeProvider.Download(ctx, rec, dest, overwrite)
}

func TestCancelledRecordIsNotRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	p := &cancellingProvider{fakeProvider: fakeProvider{name: "w"}, cancel: cancel, cancelAt: 1}
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, p)

	var succeeded, failed []string
	o, _ := newTestOrchestrator(reg, testOptions(t), WithHooks(Hooks{
		OnSuccess: func(out Outcome) { succeeded = append(succeeded, out.Record.DOI) },
		OnFailure: func(out Outcome) { failed = append(failed, out.Record.DOI) },
	}))
	s := o.Run(ctx, doi.Records([]string{"10.1002/a", "10.1002/b", "10.1002/c"}))
	assert.Len(t, collect(s), 1)

	require.ErrorIs(t, s.Err(), context.Canceled)
	assert.Equal(t, []string{"10.1002/a"}, succeeded)
	assert.Empty(t, failed)
	assert.Empty(t, s.Failures())
	assert.Equal(t, types.Metrics{"Wiley": {Attempted: 1, Succeeded: 1}}, s.Metrics())
	assert.Equal(t, 2, p.calls)
}

func TestPrimaryKeptWhenNoSupplementsFound(t *testing.T) {
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, &fakeProvider{name: "w"})

	opts := testOptions(t)
	opts.Supplements = true
	finder := &fakeFinder{}
	o, _ := newTestOrchestrator(reg, opts, WithSupplements(finder))
	s := o.Run(t.Context(), doi.Records([]string{"10.1002/a"}))
	paths := collect(s)

	require.Len(t, paths, 1)
	assert.FileExists(t, paths[0])
	assert.Equal(t, []string{"10.1002/a"}, finder.calls)
}

func TestSupplementPathsFollowPrimary(t *testing.T) {
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, &fakeProvider{name: "w"})

	opts := testOptions(t)
	opts.Supplements = true
	finder := &fakeFinder{files: []string{"si.pdf"}}
	o, _ := newTestOrchestrator(reg, opts, WithSupplements(finder))
	paths := collect(o.Run(t.Context(), doi.Records([]string{"10.1002/a"})))

	require.Len(t, paths, 2)
	assert.Equal(t, "si.pdf", filepath.Base(paths[1]))
	assert.Equal(t, filepath.Dir(paths[0]), filepath.Dir(paths[1]))
}

func TestSupplementsDisabled(t *testing.T) {
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, &fakeProvider{name: "w"})
	finder := &fakeFinder{files: []string{"si.pdf"}}
	o, _ := newTestOrchestrator(reg, testOptions(t), WithSupplements(finder))
	collect(o.Run(t.Context(), doi.Records([]string{"10.1002/a"})))
	assert.Empty(t, finder.calls)
}

func TestLegacyFileMigrated(t *testing.T) {
	reg := NewRegistry()
	w := &fakeProvider{name: "w"}
	reg.Set(types.PublisherWiley, w)

	opts := testOptions(t)
	slug := doi.Slug("10.1002/a")
	dir := filepath.Join(opts.OutputDir, slug)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "article.pdf"), []byte("legacy"), 0o644))

	o, _ := newTestOrchestrator(reg, opts)
	paths := collect(o.Run(t.Context(), doi.Records([]string{"10.1002/a"})))

	require.Equal(t, []string{filepath.Join(dir, slug+".pdf")}, paths)
	data, _ := os.ReadFile(paths[0])
	assert.Equal(t, "legacy", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "article.pdf"))
}

func TestLegacyFileLeftWhenTargetExists(t *testing.T) {
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, &fakeProvider{name: "w"})

	opts := testOptions(t)
	slug := doi.Slug("10.1002/a")
	dir := filepath.Join(opts.OutputDir, slug)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "article.pdf"), []byte("legacy"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, slug+".pdf"), []byte("current"), 0o644))

	o, _ := newTestOrchestrator(reg, opts)
	collect(o.Run(t.Context(), doi.Records([]string{"10.1002/a"})))

	assert.FileExists(t, filepath.Join(dir, "article.pdf"))
	data, _ := os.ReadFile(filepath.Join(dir, slug+".pdf"))
	assert.Equal(t, "current", string(data))
}

func TestPacingSkipsDisqualifiedAndLast(t *testing.T) {
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, &fakeProvider{name: "w"})

	opts := testOptions(t)
	opts.MinDelay = time.Second
	o, sleeps := newTestOrchestrator(reg, opts)
	collect(o.Run(t.Context(), doi.Records([]string{"10.1002/a", "10.5555/b", "10.1002/c", "10.1002/d"})))

	// After a and c; not after the disqualified b or the final d.
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *sleeps)
}

func TestEffectiveDelay(t *testing.T) {
	o := New(NewRegistry(), Options{Delay: 200 * time.Millisecond, MinDelay: time.Second}, zerolog.Nop())
	assert.Equal(t, time.Second, o.EffectiveDelay())

	o = New(NewRegistry(), OptionsFromConfig(types.HarvestConfig{Delay: 1500 * time.Millisecond}), zerolog.Nop())
	assert.Equal(t, 1500*time.Millisecond, o.EffectiveDelay())
}

func TestStreamIsLazyAndSinglePass(t *testing.T) {
	w := &fakeProvider{name: "w"}
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, w)

	o, _ := newTestOrchestrator(reg, testOptions(t))
	s := o.Run(t.Context(), doi.Records([]string{"10.1002/a", "10.1002/b", "10.1002/c"}))
	assert.Equal(t, 0, w.calls)

	for range s.Paths() {
		break
	}
	assert.Equal(t, 1, w.calls)
	assert.Empty(t, collect(s))
	assert.Equal(t, 1, w.calls)
}

func TestHooksObserveOutcomesInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, &fakeProvider{name: "w"})

	var events []string
	hooks := Hooks{
		OnSuccess: func(o Outcome) { events = append(events, "ok:"+o.Record.DOI) },
		OnFailure: func(o Outcome) { events = append(events, "fail:"+o.Record.DOI) },
	}
	o, _ := newTestOrchestrator(reg, testOptions(t), WithHooks(hooks))
	collect(o.Run(t.Context(), doi.Records([]string{"10.1002/a", "10.5555/b", "10.1002/c"})))

	assert.Equal(t, []string{"ok:10.1002/a", "fail:10.5555/b", "ok:10.1002/c"}, events)
}

func TestCancelledContextStopsBeforeWork(t *testing.T) {
	w := &fakeProvider{name: "w"}
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, w)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	o, _ := newTestOrchestrator(reg, testOptions(t))
	s := o.Run(ctx, doi.Records([]string{"10.1002/a"}))
	assert.Empty(t, collect(s))
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.Equal(t, 0, w.calls)
}

func TestRecordWithoutIdentifier(t *testing.T) {
	reg := NewRegistry()
	reg.Set(types.PublisherElsevier, &fakeProvider{name: "e"})
	o, _ := newTestOrchestrator(reg, testOptions(t))
	s := o.Run(t.Context(), []types.ArticleRecord{{Title: "untitled", Publisher: types.PublisherElsevier}})
	assert.Empty(t, collect(s))
	require.Len(t, s.Failures(), 1)
	assert.Equal(t, provider.KindNoContent, s.Failures()[0].Kind)
}

func TestCollector(t *testing.T) {
	promReg := prometheus.NewRegistry()
	c := NewCollector(promReg)

	reg := NewRegistry()
	reg.Set(types.PublisherCrossref,
		&fakeProvider{name: "openalex", err: fetchErr("openalex", provider.KindNotOpenAccess, "closed")},
		&fakeProvider{name: "crossref"},
	)
	o, _ := newTestOrchestrator(reg, testOptions(t), WithCollector(c))
	collect(o.Run(t.Context(), doi.Records([]string{"10.5555/a", "10.1002/b"})))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Attempts.WithLabelValues("Crossref")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Successes.WithLabelValues("Crossref")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Failures.WithLabelValues("openalex", "not_open_access")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Skipped.WithLabelValues("Wiley")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.Duration))
}

func TestLimitPerPublisher(t *testing.T) {
	records := doi.Records([]string{"10.1002/a", "10.1002/b", "10.1016/c", "10.1002/d", "10.5555/e", "10.1016/f"})

	got := LimitPerPublisher(records, 1)
	var ids []string
	for _, r := range got {
		ids = append(ids, r.DOI)
	}
	assert.Equal(t, []string{"10.1002/a", "10.1016/c", "10.5555/e"}, ids)
	assert.Len(t, LimitPerPublisher(records, 0), len(records))

	_, positions := LimitPerPublisherIndexed(records, 1)
	assert.Equal(t, []int{0, 2, 4}, positions)
	_, positions = LimitPerPublisherIndexed(records[:2], 0)
	assert.Equal(t, []int{0, 1}, positions)
}

func TestBuildPlan(t *testing.T) {
	reg := NewRegistry()
	reg.Set(types.PublisherWiley, &fakeProvider{name: "w"})
	reg.Disable(types.PublisherElsevier, "missing credential ELSEVIER_API_KEY")

	var dois []string
	for _, s := range []string{"a", "b", "c", "d", "e", "f"} {
		dois = append(dois, "10.1002/"+s)
	}
	dois = append(dois, "10.1016/x")
	plan := BuildPlan(doi.Records(dois), reg)

	assert.Equal(t, 7, plan.Total)
	assert.Equal(t, map[types.Publisher]int{types.PublisherWiley: 6}, plan.Counts)
	assert.Equal(t, []string{"10.1002/a", "10.1002/b", "10.1002/c", "10.1002/d", "10.1002/e"}, plan.Examples)
	assert.Len(t, plan.Routable, 6)
	require.Len(t, plan.Dropped, 1)
	assert.Equal(t, "10.1016/x", plan.Dropped[0].DOI)
	assert.Equal(t, "missing credential ELSEVIER_API_KEY", plan.Disabled[types.PublisherElsevier])
	assert.Equal(t, "Wiley=6", plan.Summary())
}
