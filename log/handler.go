package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// termHandler renders "LEVEL [time] message key=value ..." lines, colorizing
// the level when the underlying writer is a terminal. It deliberately does
// not implement the full slog.Handler attribute-grouping contract (WithGroup
// is a no-op) — this codebase never nests attribute groups.
type termHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	color bool
	attrs []slog.Attr
	glog  *GlogHandler
}

// NewTerminalHandler returns a slog.Handler suitable for interactive use.
func NewTerminalHandler(w io.Writer) slog.Handler {
	return &termHandler{mu: new(sync.Mutex), w: colorableWriter(w), color: isTerminal(w)}
}

func (h *termHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.glog != nil {
		return h.glog.enabled(level)
	}
	return true
}

func (h *termHandler) Handle(_ context.Context, r slog.Record) error {
	buf := new(bytes.Buffer)
	lvl := levelNames[r.Level]
	if lvl == "" {
		lvl = r.Level.String()
	}
	if h.color {
		fmt.Fprintf(buf, "%s%-5s\x1b[0m[%s] %s", levelColor(r.Level), lvl, nowStamp(), r.Message)
	} else {
		fmt.Fprintf(buf, "%-5s[%s] %s", lvl, nowStamp(), r.Message)
	}

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool { attrs = append(attrs, a); return true })
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })

	pad := 40 - buf.Len()
	for range max(pad, 0) {
		buf.WriteByte(' ')
	}
	for _, a := range attrs {
		fmt.Fprintf(buf, " %s=%v", a.Key, a.Value.Any())
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *termHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *termHandler) WithGroup(string) slog.Handler { return h }

func levelColor(l slog.Level) string {
	switch {
	case l >= LevelCrit.slog():
		return "\x1b[35m"
	case l >= LevelError.slog():
		return "\x1b[31m"
	case l >= LevelWarn.slog():
		return "\x1b[33m"
	case l >= LevelInfo.slog():
		return "\x1b[32m"
	default:
		return "\x1b[36m"
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// GlogHandler filters records against a global verbosity threshold. Vmodule
// parses and stores per-file-pattern levels ("sumeragi.go=9"), the same knob
// go-ethereum exposes via --vmodule, but Enabled consults only the global
// threshold: the stored patterns do not change which records pass.
type GlogHandler struct {
	mu       sync.Mutex
	inner    slog.Handler
	verbosity slog.Level
	vmodule  map[string]slog.Level
}

func NewGlogHandler(inner slog.Handler) *GlogHandler {
	return &GlogHandler{inner: inner, verbosity: LevelInfo.slog(), vmodule: map[string]slog.Level{}}
}

func (g *GlogHandler) Verbosity(lvl Level) { g.mu.Lock(); g.verbosity = lvl.slog(); g.mu.Unlock() }

// Vmodule parses a comma separated "pattern=level" list.
func (g *GlogHandler) Vmodule(spec string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, part := range strings.Split(spec, ",") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("log: malformed vmodule entry %q", part)
		}
		var lvl int
		if _, err := fmt.Sscanf(kv[1], "%d", &lvl); err != nil {
			return fmt.Errorf("log: malformed vmodule level in %q: %w", part, err)
		}
		g.vmodule[kv[0]] = slog.Level(lvl)
	}
	return nil
}

func (g *GlogHandler) enabled(level slog.Level) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return level >= g.verbosity
}

func (g *GlogHandler) Enabled(ctx context.Context, level slog.Level) bool { return g.enabled(level) }
func (g *GlogHandler) Handle(ctx context.Context, r slog.Record) error    { return g.inner.Handle(ctx, r) }
func (g *GlogHandler) WithAttrs(a []slog.Attr) slog.Handler               { return g.inner.WithAttrs(a) }
func (g *GlogHandler) WithGroup(n string) slog.Handler                    { return g.inner.WithGroup(n) }

func JSONHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
}
