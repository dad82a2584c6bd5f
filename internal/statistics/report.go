package statistics

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"image-optimizer-go/internal/compressor"
)

// Rule is the separator printed around the per-file lines.
var Rule = strings.Repeat("=", 50)

// Reporter prints the console report. Each call writes whole lines under a
// lock so concurrent workers never interleave output.
type Reporter struct {
	w     io.Writer
	quiet bool
	mu    sync.Mutex
}

// NewReporter returns a Reporter writing to w. A quiet reporter only prints
// failures.
func NewReporter(w io.Writer, quiet bool) *Reporter {
	return &Reporter{w: w, quiet: quiet}
}

func (r *Reporter) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, s)
}

// Banner prints the header and the opening rule.
func (r *Reporter) Banner() {
	if r.quiet {
		return
	}
	r.println("🖼️  Compressing images for faster web loading...\n" + Rule)
}

// Result prints the status line for one file.
func (r *Reporter) Result(res compressor.CompressionResult) {
	if res.Success() && r.quiet {
		return
	}
	r.println(FormatResult(res))
}

// Summary prints the closing rule and the aggregate lines.
func (r *Reporter) Summary(s *RunSummary, outputDir string) {
	if r.quiet {
		return
	}
	r.println(Rule + "\n" + FormatSummary(s, outputDir))
}

// FormatResult renders one file as
// "✓ name: origKB → compKB (pct% reduction)" or "✗ Error processing name: msg".
func FormatResult(res compressor.CompressionResult) string {
	if !res.Success() {
		msg := res.Message
		if res.Error != nil {
			msg = res.Error.Error()
		}
		return fmt.Sprintf("✗ Error processing %s: %s", res.Name(), msg)
	}
	return fmt.Sprintf("✓ %s: %.1fKB → %.1fKB (%.1f%% reduction)",
		res.Name(),
		float64(res.OriginalSize)/1024,
		float64(res.CompressedSize)/1024,
		res.PercentageSaved)
}

// FormatSummary renders the aggregate lines printed after the last file.
func FormatSummary(s *RunSummary, outputDir string) string {
	original, compressed := s.Totals()
	dir := strings.TrimSuffix(outputDir, "/")
	return fmt.Sprintf("📊 Total size reduction: %.1fMB → %.1fMB\n"+
		"💾 Space saved: %.1f%%\n"+
		"📁 Optimized images saved in: %s/\n"+
		"\n✨ Your website will now load much faster!",
		float64(original)/1024/1024,
		float64(compressed)/1024/1024,
		s.PercentSaved(),
		dir)
}
