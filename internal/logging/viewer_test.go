package logging

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

const sampleLog = `{"time":"2026-03-01T10:00:00.000Z","level":"DEBUG","msg":"chunk_skipped","path":"a.md"}
{"time":"2026-03-01T10:00:01.000Z","level":"INFO","msg":"index_pass_complete","container":"Docs","files":3}
not json at all
{"time":"2026-03-01T10:00:02.500Z","level":"WARN","msg":"embed_retry","attempt":2}
{"time":"2026-03-01T10:00:03.000Z","level":"ERROR","msg":"store_write_failed","container":"Docs"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "amanfind.log")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseLine(t *testing.T) {
	e := ParseLine(`{"time":"2026-03-01T10:00:01.000Z","level":"INFO","msg":"done","files":3}`)
	if !e.Valid || e.Level != "INFO" || e.Msg != "done" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Attrs["files"] != float64(3) {
		t.Errorf("attrs = %v", e.Attrs)
	}
	if _, ok := e.Attrs["msg"]; ok {
		t.Error("msg should not be an attr")
	}

	if raw := ParseLine("plain text"); raw.Valid || raw.Raw != "plain text" {
		t.Errorf("unexpected entry for raw line: %+v", raw)
	}
}

func TestViewer_Tail(t *testing.T) {
	path := writeLog(t, sampleLog)

	tests := []struct {
		name string
		cfg  ViewerConfig
		n    int
		want []string
	}{
		{"last two", ViewerConfig{}, 2, []string{"embed_retry", "store_write_failed"}},
		{"all", ViewerConfig{}, 0, []string{"chunk_skipped", "index_pass_complete", "not json at all", "embed_retry", "store_write_failed"}},
		{"warn and above", ViewerConfig{Level: "warn"}, 10, []string{"not json at all", "embed_retry", "store_write_failed"}},
		{"pattern", ViewerConfig{Pattern: regexp.MustCompile(`"container":"Docs"`)}, 10, []string{"index_pass_complete", "store_write_failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewViewer(tt.cfg).Tail(path, tt.n)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, e := range entries {
				if e.Valid {
					got = append(got, e.Msg)
				} else {
					got = append(got, e.Raw)
				}
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestViewer_TailMissingFile(t *testing.T) {
	if _, err := NewViewer(ViewerConfig{}).Tail(filepath.Join(t.TempDir(), "none.log"), 5); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestViewer_Format(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true})
	e := ParseLine(`{"time":"2026-03-01T10:00:02.500Z","level":"WARN","msg":"embed_retry","b":1,"a":"x"}`)

	got := v.Format(e)

	if got != "10:00:02.500 WARN  embed_retry a=x b=1" {
		t.Errorf("Format = %q", got)
	}
	if v.Format(ParseLine("raw")) != "raw" {
		t.Error("raw lines should print as written")
	}
}

func TestViewer_Follow(t *testing.T) {
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{Level: "info"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, out) }()

	// Existing lines are skipped; new ones arrive once complete.
	time.Sleep(250 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"time":"2026-03-01T10:00:04Z","level":"DEBUG","msg":"hidden"}` + "\n")
	_, _ = f.WriteString(`{"time":"2026-03-01T10:00:05Z","level":"INFO","msg":"watch_`)
	time.Sleep(250 * time.Millisecond)
	_, _ = f.WriteString(`started"}` + "\n")
	_ = f.Close()

	select {
	case e := <-out:
		if e.Msg != "watch_started" {
			t.Errorf("got %q", e.Msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no entry followed")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned %v", err)
	}
}
