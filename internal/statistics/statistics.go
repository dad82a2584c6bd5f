package statistics

import (
	"fmt"
	"sync"
	"time"

	"image-optimizer-go/internal/compressor"
)

// RunSummary aggregates the results of one batch run.
type RunSummary struct {
	FilesFound     int64
	FilesProcessed int64
	FilesSucceeded int64
	FilesFailed    int64

	// Byte totals cover successful files only.
	TotalOriginalBytes   int64
	TotalCompressedBytes int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Errors []StatError

	mutex sync.RWMutex
}

// StatError represents a file that could not be compressed.
type StatError struct {
	FilePath  string
	Error     string
	Timestamp time.Time
}

// NewRunSummary returns a new RunSummary with its clock started.
func NewRunSummary() *RunSummary {
	return &RunSummary{
		StartTime: time.Now(),
		Errors:    make([]StatError, 0),
	}
}

// SetFilesFound records how many inputs were discovered.
func (s *RunSummary) SetFilesFound(n int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FilesFound = int64(n)
}

// Add folds one file's result into the summary. Safe for concurrent use.
func (s *RunSummary) Add(res compressor.CompressionResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.FilesProcessed++
	if !res.Success() {
		s.FilesFailed++
		msg := res.Message
		if res.Error != nil {
			msg = res.Error.Error()
		}
		s.Errors = append(s.Errors, StatError{
			FilePath:  res.InputPath,
			Error:     msg,
			Timestamp: res.FinishedAt,
		})
		return
	}

	s.FilesSucceeded++
	s.TotalOriginalBytes += res.OriginalSize
	s.TotalCompressedBytes += res.CompressedSize
}

// Finalize stops the clock.
func (s *RunSummary) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// Totals returns the original and compressed byte totals.
func (s *RunSummary) Totals() (original, compressed int64) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.TotalOriginalBytes, s.TotalCompressedBytes
}

// BytesSaved returns the aggregate difference. Negative means outputs grew.
func (s *RunSummary) BytesSaved() int64 {
	original, compressed := s.Totals()
	return original - compressed
}

// PercentSaved returns (sum original - sum compressed) / sum original * 100,
// or 0 when nothing was compressed.
func (s *RunSummary) PercentSaved() float64 {
	return compressor.Reduction(s.Totals())
}

// GetFilesFailed returns the number of files that could not be compressed.
func (s *RunSummary) GetFilesFailed() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.FilesFailed
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *RunSummary) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.FilePath,
			err.Error)
	}
	return result
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
