// Package monitoring - telemetry.go records events to per-category JSONL
// files under logs/<category>/ with count- and age-based retention
// (spec.md §6 "Filesystem layout (logging sink)").
//
// DESIGN: one Tracker owns three categories — "llm", "embedding",
// "vector" — each writing adapter-<UTC timestamp>.log files, the timestamp
// in 20060102T150405.000000000Z form (or, when a batch ID is set,
// batch-<id>/adapter-<timestamp>.log). Retention prunes by file
// count (most-recent wins) and by age in days, sparing the currently-open
// file, matching spec.md's LLM_ADAPTER_*_LOG_MAX_FILES / *_MAX_AGE_DAYS
// knobs (carried here as TelemetryConfig.MaxFiles/MaxAgeDays, set from
// the config file; no environment variable overrides them).
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Tracker records telemetry events to category-scoped JSONL files.
type Tracker struct {
	cfg TelemetryConfig
	mu  sync.Mutex

	// categoryFiles caches the currently-open file handle per category
	// (and, when batched, per batch id) so repeated writes append to the
	// same file within a process lifetime.
	categoryFiles map[string]*os.File
}

// NewTracker builds a Tracker. When cfg.Enabled is false or
// cfg.DisableFileLogs is set, Record* calls are no-ops.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{cfg: cfg, categoryFiles: map[string]*os.File{}}
	if !cfg.Enabled || cfg.DisableFileLogs {
		return t, nil
	}
	if err := os.MkdirAll(cfg.LogDir, 0o750); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordRequest appends a RequestEvent to logs/adapter-*.log.
func (t *Tracker) RecordRequest(event *RequestEvent) {
	t.record("", event)
	if t.cfg.Enabled && !t.cfg.DisableConsole {
		log.Info().
			Str("request_id", shortID(event.RequestID)).
			Int("status", event.StatusCode).
			Int64("latency_ms", event.LatencyMs).
			Bool("success", event.Success).
			Msg("request")
	}
}

// RecordProviderCall appends a ProviderCallEvent under logs/llm/ (or
// logs/llm/batch-<id>/ when batchID is non-empty).
func (t *Tracker) RecordProviderCall(batchID string, event *ProviderCallEvent) {
	t.record(categoryPath("llm", batchID), event)
}

// RecordEmbeddingCall appends under logs/embedding/.
func (t *Tracker) RecordEmbeddingCall(batchID string, event *ProviderCallEvent) {
	t.record(categoryPath("embedding", batchID), event)
}

// RecordVectorCall appends under logs/vector/.
func (t *Tracker) RecordVectorCall(batchID string, event *ProviderCallEvent) {
	t.record(categoryPath("vector", batchID), event)
}

// RecordToolCall appends a ToolCallEvent under logs/llm/ alongside
// provider calls for the same request.
func (t *Tracker) RecordToolCall(batchID string, event *ToolCallEvent) {
	t.record(categoryPath("llm", batchID), event)
}

// RecordTrajectory appends a TrajectoryEvent under logs/llm/trajectory/.
func (t *Tracker) RecordTrajectory(batchID string, event *TrajectoryEvent) {
	t.record(filepath.Join(categoryPath("llm", batchID), "trajectory"), event)
}

func categoryPath(category, batchID string) string {
	if batchID == "" {
		return category
	}
	return filepath.Join(category, "batch-"+batchID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// record appends event as one JSON line to the subdirectory's current
// file, opening a new file per process-lifetime-per-subdir and pruning
// stale ones on each open.
func (t *Tracker) record(subdir string, event any) {
	if !t.cfg.Enabled || t.cfg.DisableFileLogs {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.categoryFiles[subdir]
	if !ok {
		dir := t.cfg.LogDir
		if subdir != "" {
			dir = filepath.Join(dir, subdir)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("telemetry: failed to create log dir")
			return
		}
		path := filepath.Join(dir, "adapter-"+time.Now().UTC().Format("20060102T150405.000000000Z")+".log")
		var err error
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("telemetry: failed to open log file")
			return
		}
		t.categoryFiles[subdir] = f
		pruneRetention(dir, path, t.cfg.MaxFiles, t.cfg.MaxAgeDays)
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("telemetry: failed to marshal event")
		return
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		log.Error().Err(err).Msg("telemetry: failed to write event")
	}
}

// pruneRetention deletes files in dir beyond maxFiles (most-recent wins,
// by mtime) or older than maxAgeDays, sparing exclude (the file just
// opened for this process).
func pruneRetention(dir, exclude string, maxFiles, maxAgeDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if path == exclude {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: path, modTime: info.ModTime()})
	}

	if maxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
		var kept []fileInfo
		for _, f := range files {
			if f.modTime.Before(cutoff) {
				os.Remove(f.path)
				continue
			}
			kept = append(kept, f)
		}
		files = kept
	}

	if maxFiles > 0 && len(files)+1 > maxFiles {
		sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
		for _, f := range files[maxFiles-1:] {
			os.Remove(f.path)
		}
	}
}

// Close closes every open category file and always returns nil.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.categoryFiles {
		f.Close()
	}
	return nil
}
