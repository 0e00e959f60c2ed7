package repairguide

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"repair-stack/internal/models"
	"repair-stack/shared/config"
	"repair-stack/shared/email"
	"repair-stack/shared/logging"
	"repair-stack/shared/scheduler"
	"repair-stack/shared/storage"
)

func TestAgentName(t *testing.T) {
	agent := NewAgent(&config.Config{}, nil)
	if name := agent.Name(); name != "Repair Guide" {
		t.Errorf("Agent.Name() = %s, want Repair Guide", name)
	}
}

type stubCatalog struct {
	videos []models.CandidateVideo
	err    error
	calls  int
}

func (s *stubCatalog) Search(ctx context.Context, query string, n int) ([]models.CandidateVideo, error) {
	s.calls++
	return s.videos, s.err
}

type stubRanker struct {
	ids   []string
	err   error
	calls int
}

func (s *stubRanker) Rank(ctx context.Context, candidates []models.CandidateVideo, deviceContext string, k int) ([]string, error) {
	s.calls++
	return s.ids, s.err
}

type stubNotifier struct{ digests []*email.Digest }

func (s *stubNotifier) SendDigest(d *email.Digest) error {
	s.digests = append(s.digests, d)
	return nil
}

type stubLookup struct {
	name  string
	calls int
}

func (s *stubLookup) Lookup(ctx context.Context, query string) (string, error) {
	s.calls++
	return s.name, nil
}

// fakeDownloader writes a caption track and a one-sprite storyboard archive
// for every video, except those listed in fail.
type fakeDownloader struct {
	t     *testing.T
	fail  map[string]error
	calls []string
	dirs  []string
}

func (f *fakeDownloader) Download(ctx context.Context, video models.CandidateVideo, dir string) (models.VideoArtifacts, error) {
	f.calls = append(f.calls, video.ID)
	f.dirs = append(f.dirs, dir)
	if err := f.fail[video.ID]; err != nil {
		return models.VideoArtifacts{}, err
	}

	caption := filepath.Join(dir, video.ID+".en.vtt")
	track := "WEBVTT\nKind: captions\nLanguage: en\n\n" +
		"00:00:00.500 --> 00:00:02.000\nremove the bottom<00:00:01.000><c> cover</c>\n\n" +
		"00:00:02.000 --> 00:00:02.010\nremove the bottom cover\n\n" +
		"00:00:05.000 --> 00:00:07.000\nunplug the battery\n"
	if err := os.WriteFile(caption, []byte(track), 0o644); err != nil {
		f.t.Fatal(err)
	}

	archive := filepath.Join(dir, video.ID+".mhtml")
	if err := os.WriteFile(archive, storyboardArchive(f.t), 0o644); err != nil {
		f.t.Fatal(err)
	}
	return models.VideoArtifacts{
		CaptionPath:    caption,
		StoryboardPath: archive,
		Storyboard:     models.StoryboardFormat{FormatID: "sb0", Width: 10, Height: 10},
	}, nil
}

func storyboardArchive(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 10), uint8(y * 10), 0, 255})
		}
	}
	var sprite bytes.Buffer
	if err := png.Encode(&sprite, img); err != nil {
		t.Fatal(err)
	}

	var b bytes.Buffer
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: multipart/related; boundary=\"X\"\r\n\r\n")
	b.WriteString("--X\r\nContent-Type: text/html\r\n\r\n")
	b.WriteString("<figure><figcaption>Slide #1: 00:00:00,000 – 00:00:08,000 (duration 8s)</figcaption></figure>")
	b.WriteString("\r\n--X\r\nContent-Type: image/png\r\n\r\n")
	b.Write(sprite.Bytes())
	b.WriteString("\r\n--X--\r\n")
	return b.Bytes()
}

func ptr[T any](v T) *T { return &v }

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Admission: config.AdmissionConfig{
			MinViews:           ptr(int64(10000)),
			MinDurationSeconds: ptr(int64(60)),
			MaxDurationSeconds: ptr(int64(3600)),
			MinLikeRatio:       ptr(0.7),
		},
		Catalog:   config.CatalogConfig{SearchResults: 5, TimeoutSeconds: 5},
		Download:  config.DownloadConfig{TimeoutSeconds: 5},
		Selection: config.SelectionConfig{MaxVideos: 3},
		Output:    config.OutputConfig{ResultsDir: t.TempDir()},
	}
}

var searchCandidates = []models.CandidateVideo{
	{ID: "lowviews", Title: "T14 Gen 2 battery", Channel: "A", ViewCount: 500, Duration: 5 * time.Minute},
	{ID: "good1", Title: "ThinkPad T14 Gen 2 battery replacement", Channel: "Fix It", ViewCount: 25000, Duration: 8 * time.Minute, LikeCount: 900, DislikeCount: 20},
	{ID: "tooshort", Title: "T14 in 30 seconds", Channel: "B", ViewCount: 90000, Duration: 30 * time.Second},
	{ID: "good2", Title: "T14 Gen 2 teardown", Channel: "Laptop Lab", ViewCount: 12000, Duration: 20 * time.Minute},
	{ID: "disliked", Title: "T14 repair fail", Channel: "C", ViewCount: 40000, Duration: 10 * time.Minute, LikeCount: 10, DislikeCount: 90},
}

func newTestAgent(t *testing.T, cfg *config.Config) (*Agent, *storage.ArtifactIndex) {
	index, err := storage.NewArtifactIndex(cfg.Output.ResultsDir, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	a := NewAgent(cfg, logging.Discard())
	a.store = storage.NewArtifactStore(cfg.Output.ResultsDir, index)
	a.index = index
	return a, index
}

func TestGetSubtitlesEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	a, index := newTestAgent(t, cfg)
	catalog := &stubCatalog{videos: searchCandidates}
	ranker := &stubRanker{ids: []string{"good2", "good1"}}
	downloader := &fakeDownloader{t: t}
	a.catalog, a.ranker, a.downloader = catalog, ranker, downloader
	a.devices = &stubLookup{name: "Lenovo ThinkPad T14 Gen 2"}

	status, records := a.GetSubtitles(context.Background(), "ThinkPad T14 Gen 2 battery replacement")
	if status != StatusOK {
		t.Fatalf("status = %q, want ok", status)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Video.ID != "good2" || records[1].Video.ID != "good1" {
		t.Errorf("records in order %s, %s; want ranking order good2, good1", records[0].Video.ID, records[1].Video.ID)
	}
	if got := records[1].Provenance; got != "'ThinkPad T14 Gen 2 battery replacement' by Fix It on YouTube." {
		t.Errorf("provenance = %q", got)
	}

	for _, rec := range records {
		// 2 cues and 4 frames at 0, 2, 4 and 6 seconds.
		if len(rec.Timeline) != 6 {
			t.Fatalf("video %s timeline has %d events, want 6", rec.Video.ID, len(rec.Timeline))
		}
		kinds := make([]string, len(rec.Timeline))
		for i, ev := range rec.Timeline {
			kinds[i] = string(ev.Kind)
		}
		want := "image text image image text image"
		if got := strings.Join(kinds, " "); got != want {
			t.Errorf("timeline kinds = %s, want %s", got, want)
		}
	}

	if len(downloader.calls) != 2 {
		t.Errorf("downloader called %d times, want 2", len(downloader.calls))
	}
	for _, dir := range downloader.dirs {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("workspace %s not removed", dir)
		}
	}
	if !index.IsFresh("ThinkPad T14 Gen 2 battery replacement") {
		t.Error("artifact should be indexed")
	}
	matches, _ := filepath.Glob(filepath.Join(cfg.Output.ResultsDir, "subtitles", "thinkpad_t14_gen_2_battery_replacement_*.json"))
	if len(matches) != 1 {
		t.Errorf("found %d artifacts, want 1", len(matches))
	}
}

var rejectedCandidates = []models.CandidateVideo{
	{ID: "lowviews", Title: "T14 Gen 2 battery", Channel: "A", ViewCount: 500, Duration: 5 * time.Minute},
	{ID: "tooshort", Title: "T14 in 30 seconds", Channel: "B", ViewCount: 90000, Duration: 30 * time.Second},
	{ID: "toolong", Title: "T14 livestream", Channel: "C", ViewCount: 90000, Duration: 3 * time.Hour},
	{ID: "disliked", Title: "T14 repair fail", Channel: "D", ViewCount: 40000, Duration: 10 * time.Minute, LikeCount: 10, DislikeCount: 90},
	{ID: "borderline", Title: "T14 battery swap", Channel: "E", ViewCount: 9999, Duration: 61 * time.Second, LikeCount: 100},
}

func TestSearchNoneAdmitted(t *testing.T) {
	cfg := testConfig(t)
	a, _ := newTestAgent(t, cfg)
	ranker := &stubRanker{ids: []string{"x"}}
	downloader := &fakeDownloader{t: t}
	lookup := &stubLookup{name: "Lenovo ThinkPad T14 Gen 2"}
	a.catalog = &stubCatalog{videos: rejectedCandidates}
	a.ranker, a.downloader, a.devices = ranker, downloader, lookup

	_, err := a.Search(context.Background(), "ThinkPad T14 Gen 2 battery replacement")
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("Search() error = %v, want ErrEmptyResult", err)
	}
	if StatusFor(err) != StatusError {
		t.Errorf("StatusFor() = %q", StatusFor(err))
	}
	if ranker.calls != 0 || len(downloader.calls) != 0 || lookup.calls != 0 {
		t.Errorf("ranker calls = %d, downloads = %d, lookups = %d; want none", ranker.calls, len(downloader.calls), lookup.calls)
	}

	status, records := a.GetSubtitles(context.Background(), "ThinkPad T14 Gen 2 battery replacement")
	if status != StatusError || records != nil {
		t.Errorf("GetSubtitles() = %q, %v", status, records)
	}
}

func TestSearchNoneAdmittedReasonerUntouched(t *testing.T) {
	cfg := testConfig(t)
	a, _ := newTestAgent(t, cfg)
	reasoner := &stubReasoner{response: `{"chosen":["lowviews"]}`}
	a.ranker = NewReranker(reasoner, "", time.Second, logging.Discard())
	a.catalog = &stubCatalog{videos: rejectedCandidates}
	a.downloader = &fakeDownloader{t: t}

	if _, err := a.Search(context.Background(), "t14"); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("Search() error = %v", err)
	}
	if reasoner.calls != 0 {
		t.Errorf("reasoner called %d times, want 0", reasoner.calls)
	}
}

func TestSearchNothingSelected(t *testing.T) {
	cfg := testConfig(t)
	a, _ := newTestAgent(t, cfg)
	downloader := &fakeDownloader{t: t}
	a.catalog = &stubCatalog{videos: searchCandidates}
	a.ranker = &stubRanker{}
	a.downloader = downloader

	_, err := a.Search(context.Background(), "t14")
	var empty *EmptyResultError
	if !errors.As(err, &empty) || !strings.Contains(empty.Reason, "re-ranker") {
		t.Fatalf("Search() error = %v", err)
	}
	if len(downloader.calls) != 0 {
		t.Error("no download may happen without a selection")
	}
}

func TestSearchCatalogFailure(t *testing.T) {
	cfg := testConfig(t)
	a, _ := newTestAgent(t, cfg)
	a.catalog = &stubCatalog{err: errors.New("dns failure")}
	a.ranker = &stubRanker{}
	a.downloader = &fakeDownloader{t: t}

	_, err := a.Search(context.Background(), "t14")
	var svcErr *ExternalServiceError
	if !errors.As(err, &svcErr) || svcErr.Service != "catalog" {
		t.Fatalf("Search() error = %v, want catalog ExternalServiceError", err)
	}
	if got := Describe(err); got != "catalog unavailable" {
		t.Errorf("Describe() = %q", got)
	}
}

func TestSearchDropsFailingVideo(t *testing.T) {
	cfg := testConfig(t)
	a, _ := newTestAgent(t, cfg)
	a.catalog = &stubCatalog{videos: searchCandidates}
	a.ranker = &stubRanker{ids: []string{"good1", "good2"}}
	a.downloader = &fakeDownloader{t: t, fail: map[string]error{"good1": errors.New("HTTP Error 403")}}

	set, err := a.Search(context.Background(), "t14")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(set.Videos) != 1 || set.Videos[0].Video.ID != "good2" {
		t.Errorf("videos = %+v", set.Videos)
	}
	if set.DeviceContext != "t14" {
		t.Errorf("device context = %q, want raw query", set.DeviceContext)
	}
}

func TestSearchAllVideosUnusable(t *testing.T) {
	cfg := testConfig(t)
	a, _ := newTestAgent(t, cfg)
	a.catalog = &stubCatalog{videos: searchCandidates}
	a.ranker = &stubRanker{ids: []string{"good1"}}
	a.downloader = &fakeDownloader{t: t, fail: map[string]error{"good1": errors.New("gone")}}

	if _, err := a.Search(context.Background(), "t14"); !errors.Is(err, ErrEmptyResult) {
		t.Errorf("Search() error = %v, want ErrEmptyResult", err)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	a, _ := newTestAgent(t, testConfig(t))
	catalog := &stubCatalog{}
	a.catalog = catalog
	if _, err := a.Search(context.Background(), "   "); !errors.Is(err, ErrEmptyResult) {
		t.Errorf("Search() error = %v", err)
	}
	if catalog.calls != 0 {
		t.Error("catalog must not be queried for an empty query")
	}
}

func TestRunOnceSkipsFreshQueries(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.Queries = []string{"t14 battery", "x230 keyboard"}
	a, index := newTestAgent(t, cfg)
	if err := index.Record(storage.IndexEntry{Query: "t14 battery", RequestID: "r", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	catalog := &stubCatalog{videos: searchCandidates}
	a.catalog = catalog
	a.ranker = &stubRanker{ids: []string{"good1"}}
	a.downloader = &fakeDownloader{t: t}
	notifier := &stubNotifier{}
	a.notifier = notifier

	var summary string
	events := &scheduler.AgentEvents{
		OnSuccess: func(m scheduler.Metrics, d time.Duration) { summary = m.GetSummary() },
	}
	if err := a.RunOnce(context.Background(), events); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if catalog.calls != 1 {
		t.Errorf("catalog queried %d times, want 1", catalog.calls)
	}
	if want := "processed 2 queries, refreshed 1 (1 videos), 1 still fresh, 0 failed"; summary != want {
		t.Errorf("summary = %q, want %q", summary, want)
	}

	if len(notifier.digests) != 1 {
		t.Fatalf("sent %d digests, want 1", len(notifier.digests))
	}
	d := notifier.digests[0]
	if len(d.Entries) != 1 || d.Entries[0].Query != "x230 keyboard" || d.Fresh != 1 {
		t.Errorf("digest = %+v", d)
	}
	if v := d.Entries[0].Videos; len(v) != 1 || v[0].Channel != "Fix It" || v[0].Events != 6 {
		t.Errorf("digest videos = %+v", v)
	}
}

func TestRunOnceAllFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.Queries = []string{"a", "b"}
	a, _ := newTestAgent(t, cfg)
	a.catalog = &stubCatalog{err: errors.New("offline")}
	a.ranker = &stubRanker{}
	a.downloader = &fakeDownloader{t: t}

	if err := a.RunOnce(context.Background(), &scheduler.AgentEvents{}); err == nil {
		t.Error("RunOnce() should fail when every query fails")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&EmptyResultError{Reason: "no candidate passed admission"}, "no results: no candidate passed admission"},
		{&ExternalServiceError{Service: "reasoner", Err: context.DeadlineExceeded}, "reasoner timed out"},
		{&FormatError{VideoID: "abc", Err: errors.New("bad boundary")}, "malformed data for video abc"},
		{&config.ConfigurationError{Field: "reasoner.url", Reason: "is required"}, "configuration error: reasoner.url"},
		{context.Canceled, "request cancelled"},
		{errors.New("disk full"), "internal error"},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
