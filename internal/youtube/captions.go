package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tubetext/tubetext-server/internal/retry"
)

const (
	DefaultInnertubeURL = "https://www.youtube.com/youtubei/v1/player"

	androidClientVersion = "20.10.38"
	androidUserAgent     = "com.google.android.youtube/" + androidClientVersion + " (Linux; U; Android 11) gzip"

	maxPlayerResponse   = 3 * 1024 * 1024
	maxTimedTextPayload = 2 * 1024 * 1024
)

// ErrNoTranscript means none of the requested languages has a caption track.
var ErrNoTranscript = errors.New("no transcript for requested languages")

// Track is one caption track offered for a video.
type Track struct {
	Language     string
	LanguageCode string
	IsGenerated  bool
	BaseURL      string
}

// Snippet is one timed caption line.
type Snippet struct {
	Start    float64
	Duration float64
	Text     string
}

type CaptionsConfig struct {
	InnertubeURL string
	HTTPClient   *http.Client
	Retry        retry.Config
}

// CaptionsClient fetches caption tracks using the ANDROID Innertube client.
type CaptionsClient struct {
	endpoint   string
	httpClient *http.Client
	retry      retry.Config
}

func NewCaptionsClient(cfg CaptionsConfig) *CaptionsClient {
	c := &CaptionsClient{
		endpoint:   cfg.InnertubeURL,
		httpClient: cfg.HTTPClient,
		retry:      cfg.Retry,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultInnertubeURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.retry.MaxRetries == 0 && c.retry.InitialWait == 0 {
		c.retry = retry.Default
	}
	return c
}

type playerRequest struct {
	VideoID        string        `json:"videoId"`
	Context        playerContext `json:"context"`
	RacyCheckOk    bool          `json:"racyCheckOk"`
	ContentCheckOk bool          `json:"contentCheckOk"`
}

type playerContext struct {
	Client playerClient `json:"client"`
}

type playerClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
	Name         struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"name"`
}

func (t captionTrack) displayName() string {
	if t.Name.SimpleText != "" {
		return t.Name.SimpleText
	}
	var parts []string
	for _, r := range t.Name.Runs {
		parts = append(parts, r.Text)
	}
	if len(parts) > 0 {
		return strings.Join(parts, "")
	}
	return t.LanguageCode
}

// List returns the caption tracks offered for videoID. A video without
// captions, including one that is not playable, yields an empty list.
func (c *CaptionsClient) List(ctx context.Context, videoID string) ([]Track, error) {
	body, err := json.Marshal(playerRequest{
		VideoID: videoID,
		Context: playerContext{
			Client: playerClient{
				ClientName:        "ANDROID",
				ClientVersion:     androidClientVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := retry.HTTP(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?prettyPrint=false", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", androidUserAgent)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", androidClientVersion)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("innertube player: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("innertube player: HTTP %d: %s", resp.StatusCode, snippet)
	}

	var player playerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPlayerResponse)).Decode(&player); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	if player.Captions == nil {
		return []Track{}, nil
	}

	raw := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	tracks := make([]Track, 0, len(raw))
	for _, t := range raw {
		tracks = append(tracks, Track{
			Language:     t.displayName(),
			LanguageCode: t.LanguageCode,
			IsGenerated:  t.Kind == "asr",
			BaseURL:      t.BaseURL,
		})
	}
	return tracks, nil
}

// Fetch downloads the caption snippets of videoID in the first of languages
// that has a track. Manually authored tracks win over generated ones.
func (c *CaptionsClient) Fetch(ctx context.Context, videoID string, languages []string) ([]Snippet, error) {
	tracks, err := c.List(ctx, videoID)
	if err != nil {
		return nil, err
	}

	track, ok := pickTrack(tracks, languages)
	if !ok {
		return nil, ErrNoTranscript
	}
	return c.fetchTimedText(ctx, track.BaseURL)
}

// needsPoToken reports whether a track URL requires a browser-only PoToken.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

func pickTrack(tracks []Track, languages []string) (Track, bool) {
	for _, lang := range languages {
		var generated *Track
		for i := range tracks {
			t := &tracks[i]
			if t.LanguageCode != lang || needsPoToken(t.BaseURL) {
				continue
			}
			if !t.IsGenerated {
				return *t, true
			}
			if generated == nil {
				generated = t
			}
		}
		if generated != nil {
			return *generated, true
		}
	}
	return Track{}, false
}

type timedText struct {
	Lines []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

func (c *CaptionsClient) fetchTimedText(ctx context.Context, baseURL string) ([]Snippet, error) {
	target := strings.Replace(baseURL, "&fmt=srv3", "", 1)

	resp, err := retry.HTTP(ctx, c.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", androidUserAgent)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch timedtext: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTimedTextPayload))
	if err != nil {
		return nil, fmt.Errorf("read timedtext: %w", err)
	}
	return ParseTimedText(body)
}

// ParseTimedText decodes a timedtext XML document into snippets. Lines that
// are empty after unescaping and whitespace collapsing are dropped.
func ParseTimedText(data []byte) ([]Snippet, error) {
	var tt timedText
	if err := xml.Unmarshal(data, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	snippets := make([]Snippet, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := strings.Join(strings.Fields(html.UnescapeString(line.Text)), " ")
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(line.Start, 64)
		dur, _ := strconv.ParseFloat(line.Dur, 64)
		snippets = append(snippets, Snippet{Start: start, Duration: dur, Text: text})
	}
	return snippets, nil
}
