package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tubetext/tubetext-server/internal/retry"
)

const sampleTimedText = `<?xml version="1.0" encoding="utf-8" ?><transcript>
<text start="0" dur="2.5">Hello   world</text>
<text start="2.5" dur="3">it&amp;#39;s a test</text>
<text start="5.5" dur="1">   </text>
<text start="6.5" dur="2">line
break</text>
</transcript>`

var fastRetry = retry.Config{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

type fakeYouTube struct {
	srv          *httptest.Server
	tracks       string
	playerStatus int
	playerHits   atomic.Int32
	lastBody     map[string]any
	timedTextURL string
}

func newFakeYouTube(t *testing.T) *fakeYouTube {
	t.Helper()
	f := &fakeYouTube{playerStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/youtubei/v1/player", func(w http.ResponseWriter, r *http.Request) {
		f.playerHits.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("player method = %s, want POST", r.Method)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastBody = body
		if f.playerStatus != http.StatusOK {
			w.WriteHeader(f.playerStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.tracks)
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		f.timedTextURL = r.URL.String()
		fmt.Fprint(w, sampleTimedText)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeYouTube) client() *CaptionsClient {
	return NewCaptionsClient(CaptionsConfig{
		InnertubeURL: f.srv.URL + "/youtubei/v1/player",
		HTTPClient:   f.srv.Client(),
		Retry:        fastRetry,
	})
}

func (f *fakeYouTube) withTracks(tracks ...string) {
	f.tracks = `{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[` + strings.Join(tracks, ",") + `]}}}`
}

func (f *fakeYouTube) track(lang, kind, name string) string {
	return fmt.Sprintf(`{"baseUrl":"%s/api/timedtext?v=abc&lang=%s&kind=%s&fmt=srv3","languageCode":"%s","kind":"%s","name":{"simpleText":"%s"}}`,
		f.srv.URL, lang, kind, lang, kind, name)
}

func TestCaptionsClient_List(t *testing.T) {
	f := newFakeYouTube(t)
	f.withTracks(f.track("en", "", "English"), f.track("de", "asr", "German (auto-generated)"))

	tracks, err := f.client().List(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("len(tracks) = %d, want 2", len(tracks))
	}
	if tracks[0].LanguageCode != "en" || tracks[0].IsGenerated || tracks[0].Language != "English" {
		t.Errorf("tracks[0] = %+v", tracks[0])
	}
	if !tracks[1].IsGenerated {
		t.Errorf("tracks[1] should be generated: %+v", tracks[1])
	}

	if f.lastBody["videoId"] != "dQw4w9WgXcQ" {
		t.Errorf("videoId = %v", f.lastBody["videoId"])
	}
	client := f.lastBody["context"].(map[string]any)["client"].(map[string]any)
	if client["clientName"] != "ANDROID" {
		t.Errorf("clientName = %v, want ANDROID", client["clientName"])
	}
}

func TestCaptionsClient_ListNoCaptions(t *testing.T) {
	f := newFakeYouTube(t)
	f.tracks = `{"playabilityStatus":{"status":"LOGIN_REQUIRED","reason":"Sign in"}}`

	tracks, err := f.client().List(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("tracks = %v, want empty", tracks)
	}
}

func TestCaptionsClient_FetchPrefersManualTrack(t *testing.T) {
	f := newFakeYouTube(t)
	f.withTracks(f.track("en", "asr", "English (auto)"), f.track("en", "", "English"))

	snippets, err := f.client().Fetch(context.Background(), "dQw4w9WgXcQ", []string{"en"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if strings.Contains(f.timedTextURL, "kind=asr") {
		t.Errorf("fetched generated track %q, want manual", f.timedTextURL)
	}
	if strings.Contains(f.timedTextURL, "fmt=srv3") {
		t.Errorf("fmt=srv3 should be stripped: %q", f.timedTextURL)
	}

	want := []Snippet{
		{Start: 0, Duration: 2.5, Text: "Hello world"},
		{Start: 2.5, Duration: 3, Text: "it's a test"},
		{Start: 6.5, Duration: 2, Text: "line break"},
	}
	if len(snippets) != len(want) {
		t.Fatalf("snippets = %+v, want %+v", snippets, want)
	}
	for i := range want {
		if snippets[i] != want[i] {
			t.Errorf("snippets[%d] = %+v, want %+v", i, snippets[i], want[i])
		}
	}
}

func TestCaptionsClient_FetchFallsBackToGenerated(t *testing.T) {
	f := newFakeYouTube(t)
	f.withTracks(f.track("en", "asr", "English (auto)"))

	if _, err := f.client().Fetch(context.Background(), "dQw4w9WgXcQ", []string{"en"}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(f.timedTextURL, "kind=asr") {
		t.Errorf("timedtext url = %q, want generated track", f.timedTextURL)
	}
}

func TestCaptionsClient_FetchLanguageMissing(t *testing.T) {
	f := newFakeYouTube(t)
	f.withTracks(f.track("de", "", "German"))

	_, err := f.client().Fetch(context.Background(), "dQw4w9WgXcQ", []string{"en"})
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("err = %v, want ErrNoTranscript", err)
	}
}

func TestCaptionsClient_TransportErrorRetried(t *testing.T) {
	f := newFakeYouTube(t)
	f.playerStatus = http.StatusServiceUnavailable

	_, err := f.client().List(context.Background(), "dQw4w9WgXcQ")
	if err == nil {
		t.Fatal("expected error")
	}
	var statusErr *retry.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("err = %v, want StatusError 503", err)
	}
	if got := f.playerHits.Load(); got != int32(fastRetry.MaxRetries+1) {
		t.Errorf("player hits = %d, want %d", got, fastRetry.MaxRetries+1)
	}
}

func TestParseTimedText_Invalid(t *testing.T) {
	if _, err := ParseTimedText([]byte("<transcript><text")); err == nil {
		t.Error("expected parse error")
	}
}
