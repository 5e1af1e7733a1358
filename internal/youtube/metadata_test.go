package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
)

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"PT3M33S", 213, false},
		{"PT1H2M3S", 3723, false},
		{"PT45S", 45, false},
		{"P1DT1S", 86401, false},
		{"PT", 0, true},
		{"3:33", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseISODuration(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseISODuration(%q) = %d, %v; want %d, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestMetadataClient_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/videos") {
			http.NotFound(w, r)
			return
		}
		id := r.URL.Query().Get("id")
		w.Header().Set("Content-Type", "application/json")
		if id != "dQw4w9WgXcQ" {
			fmt.Fprint(w, `{"items":[]}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"dQw4w9WgXcQ","snippet":{"title":"Never Gonna Give You Up","channelTitle":"Rick Astley"},"contentDetails":{"duration":"PT3M33S"}}]}`)
	}))
	defer srv.Close()

	client, err := NewMetadataClient(context.Background(), "test-key",
		option.WithEndpoint(srv.URL+"/youtube/v3/"),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewMetadataClient() error = %v", err)
	}

	md, err := client.Lookup(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if md.Title != "Never Gonna Give You Up" || md.DurationSeconds != 213 || md.ChannelTitle != "Rick Astley" {
		t.Errorf("Lookup() = %+v", md)
	}

	if _, err := client.Lookup(context.Background(), "xxxxxxxxxxx"); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("missing video err = %v, want ErrVideoNotFound", err)
	}
}
