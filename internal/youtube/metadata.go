package youtube

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var ErrVideoNotFound = errors.New("video not found")

type Metadata struct {
	Title           string
	ChannelTitle    string
	DurationSeconds int
}

// MetadataClient looks up video details through the YouTube Data API.
type MetadataClient struct {
	svc *yt.Service
}

// NewMetadataClient builds a client authenticated with apiKey. Extra options
// are appended, which lets tests point the service at a fake endpoint.
func NewMetadataClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*MetadataClient, error) {
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return &MetadataClient{svc: svc}, nil
}

func (m *MetadataClient) Lookup(ctx context.Context, videoID string) (*Metadata, error) {
	resp, err := m.svc.Videos.
		List([]string{"snippet", "contentDetails"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("videos.list: %w", err)
	}

	for _, item := range resp.Items {
		if item.Id != videoID || item.Snippet == nil {
			continue
		}
		md := &Metadata{
			Title:        item.Snippet.Title,
			ChannelTitle: item.Snippet.ChannelTitle,
		}
		if item.ContentDetails != nil {
			md.DurationSeconds, _ = ParseISODuration(item.ContentDetails.Duration)
		}
		return md, nil
	}
	return nil, ErrVideoNotFound
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration converts the API's ISO 8601 durations, such as PT1H2M3S,
// into seconds.
func ParseISODuration(s string) (int, error) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	units := []int{86400, 3600, 60, 1}
	total := 0
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += n * unit
	}
	return total, nil
}
