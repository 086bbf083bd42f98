package replay

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/engine"
	"github.com/claude/flexion/internal/models"
	"github.com/claude/flexion/internal/storage"
)

// Stats tracks replay progress.
type Stats struct {
	FilesTotal    int
	FilesReplayed int
	FilesSkipped  int
	FilesErrored  int

	SamplesFed       int
	SamplesDropped   int
	RepsRecorded     int
	SessionsInserted int
}

// Header is the first line of a recording: the exercise the stream was
// captured for and, optionally, the name of the user it belongs to.
type Header struct {
	Exercise string `json:"exercise"`
	User     string `json:"user,omitempty"`
}

// Replayer walks a directory of angle-stream recordings (one JSON header
// line, then one AngleSample per line, optionally gzipped) and runs each
// through a fresh engine session. The engine clock follows sample
// timestamps, so an imported session lands in history exactly where it was
// captured, not when it was replayed.
type Replayer struct {
	db     *storage.DB
	state  *StateDB
	dir    string
	dryRun bool
	log    *slog.Logger
	stats  Stats
}

// New creates a new Replayer. In dry-run mode db may be nil: recordings are
// fed through the engine and counted but nothing is persisted or marked.
func New(db *storage.DB, state *StateDB, dir string, dryRun bool, log *slog.Logger) *Replayer {
	return &Replayer{
		db:     db,
		state:  state,
		dir:    dir,
		dryRun: dryRun,
		log:    log,
	}
}

// Run executes the replay pipeline over every .jsonl and .jsonl.gz
// recording in the directory.
func (r *Replayer) Run(ctx context.Context) (*Stats, error) {
	started := time.Now()
	runID := r.beginRun(ctx)

	files, err := listRecordings(r.dir)
	if err != nil {
		err = fmt.Errorf("listing recordings: %w", err)
		r.finishRun(ctx, runID, started, err)
		return &r.stats, err
	}

	for _, f := range files {
		r.stats.FilesTotal++

		// Check state DB
		relPath, _ := filepath.Rel(r.dir, f)
		info, err := os.Stat(f)
		if err != nil {
			r.log.Warn("stat failed", "file", f, "error", err)
			r.stats.FilesErrored++
			continue
		}

		hash, err := HashFile(f)
		if err != nil {
			r.log.Warn("hash failed", "file", f, "error", err)
			r.stats.FilesErrored++
			continue
		}

		replayed, err := r.state.IsReplayed(relPath, info.Size(), hash)
		if err != nil {
			r.log.Warn("state check failed", "file", f, "error", err)
			r.stats.FilesErrored++
			continue
		}
		if replayed {
			r.stats.FilesSkipped++
			continue
		}

		sum, err := r.replayFile(ctx, f)
		if err != nil {
			r.log.Warn("replay failed", "file", f, "error", err)
			r.stats.FilesErrored++
			continue
		}
		if sum == nil {
			r.stats.FilesSkipped++
			// Mark empty recordings so we don't re-parse them
			if !r.dryRun {
				_ = r.state.MarkReplayed(relPath, info.Size(), hash)
			}
			continue
		}

		r.stats.FilesReplayed++
		if !r.dryRun {
			if err := r.state.MarkReplayed(relPath, info.Size(), hash); err != nil {
				r.log.Warn("failed to mark replayed", "file", relPath, "error", err)
			}
		}
	}

	r.finishRun(ctx, runID, started, nil)
	return &r.stats, nil
}

func listRecordings(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	gzipped, err := filepath.Glob(filepath.Join(dir, "*.jsonl.gz"))
	if err != nil {
		return nil, err
	}
	files = append(files, gzipped...)
	sort.Strings(files)
	return files, nil
}

// beginRun opens a replay_runs row so an interrupted run is still visible
// afterwards. Best effort: failures only log, they never block the replay.
func (r *Replayer) beginRun(ctx context.Context) int64 {
	if r.dryRun || r.db == nil {
		return 0
	}
	id, err := r.db.InsertReplayRun(ctx, storage.ReplayRun{Status: "running"})
	if err != nil {
		r.log.Warn("failed to record replay run", "error", err)
		return 0
	}
	return id
}

// finishRun finalizes the replay_runs row. Per-file errors are a normal
// outcome and stay in files_errored; the run itself only errors when the
// directory walk aborts.
func (r *Replayer) finishRun(ctx context.Context, id int64, started time.Time, runErr error) {
	if id == 0 {
		return
	}
	ms := time.Since(started).Milliseconds()
	run := storage.ReplayRun{
		Status:           "success",
		FilesTotal:       r.stats.FilesTotal,
		FilesReplayed:    r.stats.FilesReplayed,
		FilesSkipped:     r.stats.FilesSkipped,
		FilesErrored:     r.stats.FilesErrored,
		SamplesFed:       r.stats.SamplesFed,
		RepsRecorded:     r.stats.RepsRecorded,
		SessionsInserted: r.stats.SessionsInserted,
		DurationMs:       &ms,
	}
	if runErr != nil {
		run.Status = "error"
		msg := runErr.Error()
		run.ErrorMessage = &msg
	}
	if err := r.db.UpdateReplayRun(ctx, id, run); err != nil {
		r.log.Warn("failed to finalize replay run", "error", err)
	}
}

// replayFile runs one recording through a fresh engine session. A nil
// summary without an error means the recording held no samples.
func (r *Replayer) replayFile(ctx context.Context, path string) (*models.SessionSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip recording: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	sc := bufio.NewScanner(reader)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		return nil, nil
	}

	var hdr Header
	if err := json.Unmarshal(sc.Bytes(), &hdr); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	ex, ok := engine.LookupExercise(hdr.Exercise)
	if !ok {
		return nil, fmt.Errorf("unknown exercise %q", hdr.Exercise)
	}

	userID, err := r.resolveUser(ctx, hdr.User)
	if err != nil {
		return nil, err
	}

	// Advisories stay out of replay: a recording must produce the same
	// session every time, and the local adaptation ladder is deterministic.
	gateway := engine.NewGateway(nil, nil, time.Second, r.log)
	sess := engine.NewSession(uuid.New(), userID, ex, gateway, r.log)

	var (
		events []models.SessionEvent
		lastAt time.Time
		fed    int
	)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var sample models.AngleSample
		if err := json.Unmarshal(line, &sample); err != nil {
			r.log.Warn("skipping malformed sample line", "file", path, "error", err)
			continue
		}
		events = append(events, sess.ProcessSample(sample)...)
		lastAt = sample.Timestamp
		fed++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}
	if fed == 0 {
		return nil, nil
	}

	status := sess.Status()
	summary := sess.Finish()

	r.stats.SamplesFed += fed
	r.stats.SamplesDropped += status.DroppedSamples
	r.stats.RepsRecorded += summary.RepCount

	if r.dryRun {
		r.log.Info("dry-run: would import session",
			"file", path,
			"exercise", ex.Kind,
			"samples", fed,
			"reps", summary.RepCount,
		)
		return &summary, nil
	}

	if err := r.persistSession(ctx, status, events, summary, lastAt); err != nil {
		return nil, err
	}
	r.stats.SessionsInserted++

	r.log.Info("imported recording",
		"file", path,
		"session", status.ID,
		"exercise", ex.Kind,
		"samples", fed,
		"reps", summary.RepCount,
	)
	return &summary, nil
}

// resolveUser maps the recording's user name to a DB user, defaulting to
// user 1 when the header names nobody.
func (r *Replayer) resolveUser(ctx context.Context, name string) (int, error) {
	if name == "" || r.db == nil {
		return 1, nil
	}
	id, err := r.db.GetOrCreateUser(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("resolving user %q: %w", name, err)
	}
	return id, nil
}

// persistSession writes the imported session: its row, reps, and target
// changes, then the summary. Any failure leaves the file unmarked so the
// next run retries; the inserts conflict away cleanly on a retry.
func (r *Replayer) persistSession(ctx context.Context, status models.SessionStatus, events []models.SessionEvent, sum models.SessionSummary, endedAt time.Time) error {
	row := models.SessionRow{
		ID:        status.ID,
		UserID:    status.UserID,
		Exercise:  status.Exercise,
		Source:    models.SessionSourceReplay,
		Phase:     status.Phase,
		StartedAt: status.StartedAt,
	}
	if _, err := r.db.InsertSession(ctx, row); err != nil {
		return err
	}
	if err := r.db.UpdateSessionProgress(ctx, status.ID, status.Phase, status.RepCount, status.Target); err != nil {
		return err
	}

	// Advisory outcomes never occur here: the gateway runs with no
	// advisors, so the event stream holds only reps and target changes.
	// Nothing resets a session mid-replay either, so the final generation
	// covers every event.
	gen := int64(status.Generation)
	var reps []models.RepRow
	for _, ev := range events {
		switch ev.Type {
		case models.EventRep:
			reps = append(reps, models.RepRow{
				SessionID:           status.ID,
				UserID:              status.UserID,
				Generation:          gen,
				RepIndex:            ev.Rep.Index,
				AchievedExtremum:    ev.Rep.AchievedExtremum,
				MinimumThresholdMet: ev.Rep.MinimumThresholdMet,
				PushTargetMet:       ev.Rep.PushTargetMet,
				NewBest:             ev.Rep.NewBest,
				DurationSec:         ev.Rep.DurationSec,
				CompletedAt:         ev.Rep.CompletedAt,
				Feedback:            ev.Rep.Feedback,
			})
		case models.EventTarget:
			tev := models.TargetEventRow{
				SessionID:        status.ID,
				UserID:           status.UserID,
				Generation:       gen,
				At:               ev.Timestamp,
				Source:           ev.Source,
				PushBefore:       ev.PushBefore,
				PushAfter:        ev.Target.PushTarget,
				MinimumThreshold: ev.Target.MinimumThreshold,
			}
			if ev.Factors != nil {
				if b, err := json.Marshal(ev.Factors); err == nil {
					tev.Factors = b
				}
			}
			if err := r.db.InsertTargetEvent(ctx, tev); err != nil {
				return err
			}
		}
	}
	if len(reps) > 0 {
		if _, err := r.db.InsertReps(ctx, reps); err != nil {
			return err
		}
	}

	return r.db.FinishSession(ctx, status.ID, endedAt, sum)
}
