package frame

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func encodeAll(t *testing.T, events ...Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, ev := range events {
		if err := w.Send(ev); err != nil {
			t.Fatalf("Send(%T): %v", ev, err)
		}
	}
	return buf.Bytes()
}

func TestWriterProducesOneDataLinePerEvent(t *testing.T) {
	out := encodeAll(t,
		ContentWord{Content: "Hel"},
		KeyUsage{Source: KeySourceServerDefault},
		Error{Message: "boom", Code: CodeUpstream},
	)

	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	want := []string{
		`data: {"type":"content_word","content":"Hel"}`,
		`data: {"type":"key_usage","source":"server_default"}`,
		`data: {"type":"error","error":"boom","code":"upstream_error"}`,
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d:\n got  %s\n want %s", i, lines[i], want[i])
		}
	}
}

func TestWriterFlushesEveryFrame(t *testing.T) {
	rec := &flushRecorder{}
	w := NewWriter(rec)
	for _, s := range []string{"a", "b", "c"} {
		if err := w.Send(ContentWord{Content: s}); err != nil {
			t.Fatal(err)
		}
	}
	if rec.flushes != 3 {
		t.Errorf("expected 3 flushes, got %d", rec.flushes)
	}
}

func TestWriterRejectsFramesAfterTerminal(t *testing.T) {
	w := NewWriter(io.Discard)
	if err := w.Send(Complete{Message: models.Message{ID: "m1"}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Send(ContentWord{Content: "late"}); err == nil {
		t.Error("expected error writing after complete")
	}
	if !w.Terminated() {
		t.Error("expected writer to report termination")
	}
}

func TestDecoderHandlesArbitraryChunking(t *testing.T) {
	chatID := "chat-1"
	input := encodeAll(t,
		ChatInfo{Chat: &models.Chat{ID: chatID, Title: "t"}},
		ContentWord{Content: "héllo "},
		ReasoningWord{Content: "thinking…"},
		ThoughtWord{Content: "🤔"},
		Complete{Message: models.Message{ID: "m1", Role: models.RoleAI, Content: "héllo "}},
	)

	for _, size := range []int{1, 2, 3, 7, len(input)} {
		dec := NewDecoder(quietLogger())
		var got []Event
		for start := 0; start < len(input); start += size {
			end := min(start+size, len(input))
			got = append(got, dec.Feed(input[start:end])...)
		}
		if err := dec.Close(); err != nil {
			t.Fatalf("chunk %d: Close: %v", size, err)
		}
		if len(got) != 5 {
			t.Fatalf("chunk %d: expected 5 events, got %d", size, len(got))
		}
		info, ok := got[0].(ChatInfo)
		if !ok || info.Chat == nil || info.Chat.ID != chatID {
			t.Errorf("chunk %d: bad chat_info %+v", size, got[0])
		}
		if cw, ok := got[1].(ContentWord); !ok || cw.Content != "héllo " {
			t.Errorf("chunk %d: bad content %+v", size, got[1])
		}
		if rw, ok := got[2].(ReasoningWord); !ok || rw.Content != "thinking…" {
			t.Errorf("chunk %d: bad reasoning %+v", size, got[2])
		}
		if tw, ok := got[3].(ThoughtWord); !ok || tw.Content != "🤔" {
			t.Errorf("chunk %d: bad thought %+v", size, got[3])
		}
		if c, ok := got[4].(Complete); !ok || c.Message.ID != "m1" {
			t.Errorf("chunk %d: bad complete %+v", size, got[4])
		}
	}
}

func TestDecoderSplitMultibyteCharacter(t *testing.T) {
	input := encodeAll(t, ContentWord{Content: "日本"})
	// Split inside the first three-byte rune.
	cut := bytes.Index(input, []byte("日")) + 1

	dec := NewDecoder(quietLogger())
	if evs := dec.Feed(input[:cut]); len(evs) != 0 {
		t.Fatalf("expected no events from partial line, got %d", len(evs))
	}
	evs := dec.Feed(input[cut:])
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if cw := evs[0].(ContentWord); cw.Content != "日本" {
		t.Errorf("expected 日本, got %q", cw.Content)
	}
}

func TestDecoderSkipsMalformedAndComments(t *testing.T) {
	input := strings.Join([]string{
		": keepalive",
		"",
		"data: {not json}",
		`data: {"type":"mystery"}`,
		`data: {"type":"content_word"}`,
		`data: {"type":"content_word","content":"ok"}`,
		"event: ignored",
		`data: {"type":"error","error":"bad"}`,
	}, "\r\n") + "\n"

	dec := NewDecoder(quietLogger())
	evs := dec.Feed([]byte(input))
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(evs), evs)
	}
	if cw, ok := evs[0].(ContentWord); !ok || cw.Content != "ok" {
		t.Errorf("unexpected first event %+v", evs[0])
	}
	if e, ok := evs[1].(Error); !ok || e.Message != "bad" {
		t.Errorf("unexpected second event %+v", evs[1])
	}
}

func TestDecoderCloseReportsTruncation(t *testing.T) {
	dec := NewDecoder(quietLogger())
	dec.Feed([]byte(`data: {"type":"content_word","con`))
	if err := dec.Close(); !errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("expected ErrTruncatedFrame, got %v", err)
	}
}

func TestUnmarshalErrorDefaultsMessage(t *testing.T) {
	ev, err := Unmarshal([]byte(`{"type":"error"}`))
	if err != nil {
		t.Fatal(err)
	}
	if e := ev.(Error); e.Message == "" {
		t.Error("expected a default message")
	}
}

type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestScannerDrainsBufferedEventsBeforeReading(t *testing.T) {
	// Three frames arrive in one network read.
	input := encodeAll(t,
		ContentWord{Content: "a"},
		ContentWord{Content: "b"},
		Complete{Message: models.Message{ID: "m", Content: "ab"}},
	)
	r := &chunkReader{chunks: [][]byte{input}}
	s := NewScanner(r, quietLogger())

	var types []Type
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		types = append(types, ev.Type())
	}
	want := []Type{TypeContentWord, TypeContentWord, TypeComplete}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestScannerTruncatedInput(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{
		[]byte("data: {\"type\":\"content_word\",\"content\":\"a\"}\n"),
		[]byte("data: {\"type\":\"comp"),
	}}
	s := NewScanner(r, quietLogger())

	if _, err := s.Next(); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("expected ErrTruncatedFrame, got %v", err)
	}
}
