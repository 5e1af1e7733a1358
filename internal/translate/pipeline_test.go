package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tubetext/tubetext-server/internal/transcript"
)

type fakeTranslator struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	inputs      []string
	failures    map[string]int // text -> number of failing attempts
	block       bool
}

func (f *fakeTranslator) Translate(ctx context.Context, text, language string) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	if n > f.maxInFlight.Load() {
		f.maxInFlight.Store(n)
	}
	f.inputs = append(f.inputs, text)

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.failures[text] > 0 {
		f.failures[text]--
		return "", errors.New("upstream 500")
	}
	return fmt.Sprintf("[%s] %s", language, text), nil
}

func segs(texts ...string) []transcript.Segment {
	out := make([]transcript.Segment, len(texts))
	for i, t := range texts {
		out[i] = transcript.Segment{Timestamp: transcript.FormatTimestamp(float64(i * 30)), Text: t}
	}
	return out
}

func collect(events *[]Event) func(Event) error {
	return func(e Event) error {
		*events = append(*events, e)
		return nil
	}
}

func fastConfig(chunk int) Config {
	return Config{ChunkSize: chunk, MaxAttempts: 3, Backoff: time.Millisecond}
}

func TestStream_OneEventPerChunkThenDone(t *testing.T) {
	tr := &fakeTranslator{}
	p := NewPipeline(tr, fastConfig(1))

	var events []Event
	if err := p.Stream(context.Background(), segs("a", "b", "c"), "fr", collect(&events)); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	for i, want := range []string{"[fr] a", "[fr] b", "[fr] c"} {
		if events[i].Translation == nil || *events[i].Translation != want {
			t.Errorf("event %d = %+v, want %q", i, events[i], want)
		}
	}
	if !events[3].Done {
		t.Errorf("last event = %+v, want done", events[3])
	}
	if tr.maxInFlight.Load() != 1 {
		t.Errorf("max in flight = %d, want 1", tr.maxInFlight.Load())
	}
}

func TestStream_ChunkSizeJoinsSegments(t *testing.T) {
	tr := &fakeTranslator{}
	p := NewPipeline(tr, fastConfig(2))

	var events []Event
	if err := p.Stream(context.Background(), segs("a", "b", "c"), "de", collect(&events)); err != nil {
		t.Fatal(err)
	}
	if want := []string{"a b", "c"}; !slices.Equal(tr.inputs, want) {
		t.Errorf("translator inputs = %v, want %v", tr.inputs, want)
	}
	if len(events) != 3 {
		t.Errorf("events = %d, want 3", len(events))
	}
}

func TestStream_EmptyInputOnlyDone(t *testing.T) {
	p := NewPipeline(&fakeTranslator{}, fastConfig(1))

	var events []Event
	if err := p.Stream(context.Background(), nil, "fr", collect(&events)); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || !events[0].Done {
		t.Errorf("events = %+v, want single done", events)
	}
}

func TestStream_RetriesTransientFailure(t *testing.T) {
	tr := &fakeTranslator{failures: map[string]int{"b": 2}}
	p := NewPipeline(tr, fastConfig(1))

	var events []Event
	if err := p.Stream(context.Background(), segs("a", "b"), "fr", collect(&events)); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(events) != 3 || !events[2].Done {
		t.Errorf("events = %+v", events)
	}
}

func TestStream_PersistentFailureEndsWithError(t *testing.T) {
	tr := &fakeTranslator{failures: map[string]int{"b": 10}}
	p := NewPipeline(tr, fastConfig(1))

	var events []Event
	err := p.Stream(context.Background(), segs("a", "b", "c"), "fr", collect(&events))

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) || chunkErr.Chunk != 1 {
		t.Fatalf("err = %v, want ChunkError for chunk 1", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %+v, want translation then error", events)
	}
	last := events[1]
	if last.Error == "" || last.Chunk == nil || *last.Chunk != 1 || last.Done {
		t.Errorf("last event = %+v", last)
	}
	if slices.Contains(tr.inputs, "c") {
		t.Error("stream must stop after a failed chunk")
	}
	if attempts := len(tr.inputs) - 1; attempts != 3 {
		t.Errorf("attempts on failing chunk = %d, want 3", attempts)
	}
}

func TestStream_EmitErrorStops(t *testing.T) {
	tr := &fakeTranslator{}
	p := NewPipeline(tr, fastConfig(1))
	gone := errors.New("client gone")

	err := p.Stream(context.Background(), segs("a", "b"), "fr", func(Event) error { return gone })
	if !errors.Is(err, gone) {
		t.Errorf("err = %v, want %v", err, gone)
	}
	if len(tr.inputs) != 1 {
		t.Errorf("translated %d chunks after emit failure, want 1", len(tr.inputs))
	}
}

func TestStream_CancelAbortsInFlight(t *testing.T) {
	tr := &fakeTranslator{block: true}
	p := NewPipeline(tr, fastConfig(1))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	var events []Event
	err := p.Stream(ctx, segs("a", "b"), "fr", collect(&events))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
}

func TestEvent_JSON(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{TranslationEvent("hola"), `{"translation":"hola"}`},
		{TranslationEvent(""), `{"translation":""}`},
		{DoneEvent(), `{"done":true}`},
		{ErrorEvent(0, "Translation failed"), `{"error":"Translation failed","chunk":0}`},
	}
	for _, tt := range tests {
		got, _ := json.Marshal(tt.ev)
		if string(got) != tt.want {
			t.Errorf("json = %s, want %s", got, tt.want)
		}
	}
}
