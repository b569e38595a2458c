package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lanegrid/agtrace/internal/assemble"
	"github.com/lanegrid/agtrace/internal/event"
	"github.com/lanegrid/agtrace/internal/logging"
	"github.com/lanegrid/agtrace/internal/provider"
	"github.com/lanegrid/agtrace/internal/telemetry"
	"github.com/lanegrid/agtrace/internal/tokens"
)

// Defaults for the poll loop.
const (
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultRotationDebounce = 250 * time.Millisecond
	DefaultIdleThreshold    = 2 * time.Second
	defaultBufferSize       = 64
)

// Config sets up a Watcher. SessionID selects session mode; empty means
// provider mode, which auto-rotates to the most recently written file
// under the log root.
type Config struct {
	Adapter   provider.Adapter
	LogRoot   string
	SessionID string
	// Model resolves the context-window limit; empty falls back to the model
	// recorded on the usage event, then to a window the provider reports
	// inline, and otherwise leaves Limit unset.
	Model            string
	PollInterval     time.Duration
	RotationDebounce time.Duration
	IdleThreshold    time.Duration
	BufferSize       int
}

// DocumentOriented is implemented by adapters whose files are single JSON
// documents rather than JSONL.
type DocumentOriented interface {
	DocumentOriented() bool
}

func isDocumentOriented(a provider.Adapter) bool {
	d, ok := a.(DocumentOriented)
	return ok && d.DocumentOriented()
}

// auxTail follows one auxiliary file of the attached session with its own
// normalizer state.
type auxTail struct {
	path       string
	tail       *tailer
	normalizer provider.Normalizer
}

// Watcher tail-follows one target and fans StreamEvents out to
// subscribers. It exclusively owns its read handles and event buffer;
// subscribers hold only a receiver end.
type Watcher struct {
	cfg   Config
	log   *logging.Logger
	state State

	tail       *tailer
	normalizer provider.Normalizer
	path       string
	sessionID  string
	// aux tails the session's auxiliary files (session mode only).
	aux []*auxTail

	events []event.Event
	byID   map[string]int

	lastUsage      *tokens.ContextWindowUsage
	lastData       time.Time
	lastAuxRefresh time.Time
	waiting        bool

	subs []chan StreamEvent
}

// New creates a Watcher from config, filling defaults.
func New(cfg Config) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RotationDebounce <= 0 {
		cfg.RotationDebounce = DefaultRotationDebounce
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = DefaultIdleThreshold
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Watcher{
		cfg:   cfg,
		log:   logging.New().WithComponent("watcher"),
		state: StateIdle,
		byID:  make(map[string]int),
	}
}

// State returns the current lifecycle state.
func (w *Watcher) State() State { return w.state }

// Subscribe registers a new bounded, lossless subscriber channel. Must be
// called before Run. Backpressure blocks the streamer's emission, not its
// polling state.
func (w *Watcher) Subscribe() <-chan StreamEvent {
	ch := make(chan StreamEvent, w.cfg.BufferSize)
	w.subs = append(w.subs, ch)
	return ch
}

func (w *Watcher) emit(ev StreamEvent) {
	for _, ch := range w.subs {
		ch <- ev
	}
}

// Run polls until ctx is cancelled or a fatal I/O error occurs. A cancel
// signal takes effect within one poll interval; the current batch is
// flushed, a terminal Disconnected is emitted, and every subscriber
// channel closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		for _, ch := range w.subs {
			close(ch)
		}
	}()

	notify := w.startFsnotify(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.poll(ctx)
		if w.state == StateDisconnected {
			return nil
		}
		select {
		case <-ctx.Done():
			w.poll(context.Background()) // flush the final batch
			w.state = StateDisconnected
			w.emit(Disconnected{Reason: "cancelled"})
			return ctx.Err()
		case <-ticker.C:
		case <-notify:
			// Filesystem activity; poll early.
		}
	}
}

// startFsnotify wires directory-level wakeups. Polling stays the source of
// truth; fsnotify only shortens latency.
func (w *Watcher) startFsnotify(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Debug("fsnotify unavailable", map[string]interface{}{"error": err.Error()})
		return wake
	}
	if err := fsw.Add(w.cfg.LogRoot); err != nil {
		w.log.Debug("fsnotify add failed", map[string]interface{}{"error": err.Error()})
	}
	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-fsw.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return wake
}

func (w *Watcher) poll(ctx context.Context) {
	if w.state == StateDisconnected {
		return
	}
	if w.tail == nil {
		w.tryAttach(ctx)
		if w.tail == nil {
			return
		}
	}
	w.checkRotation()
	w.refreshAux()
	w.readAndEmit()
	w.checkIdle()
}

// auxRefreshEvery spaces out session-mode re-discovery; subagent files
// appear only after their spawn, so the set grows mid-session.
const auxRefreshEvery = 10

// refreshAux re-resolves the named session's auxiliary files and starts
// tailing any that appeared since attach.
func (w *Watcher) refreshAux() {
	if w.cfg.SessionID == "" {
		return
	}
	if time.Since(w.lastAuxRefresh) < auxRefreshEvery*w.cfg.PollInterval {
		return
	}
	w.lastAuxRefresh = time.Now()

	_, _, auxFiles := w.findTarget()
	known := make(map[string]bool, len(w.aux))
	for _, a := range w.aux {
		known[a.path] = true
	}
	for _, path := range auxFiles {
		if known[path] {
			continue
		}
		w.aux = append(w.aux, &auxTail{
			path:       path,
			tail:       newTailer(path, isDocumentOriented(w.cfg.Adapter)),
			normalizer: w.cfg.Adapter.Normalizer(path),
		})
	}
}

// tryAttach locates the target file and opens it. Session mode resolves
// the named session's primary file; provider mode picks the most recently
// written candidate.
func (w *Watcher) tryAttach(ctx context.Context) {
	path, sessionID, auxFiles := w.findTarget()
	if path == "" {
		w.state = StateWaiting
		if !w.waiting {
			w.waiting = true
			w.emit(Waiting{Idle: 0})
		}
		return
	}
	w.attach(ctx, path, sessionID, false)
	for _, auxPath := range auxFiles {
		w.aux = append(w.aux, &auxTail{
			path:       auxPath,
			tail:       newTailer(auxPath, isDocumentOriented(w.cfg.Adapter)),
			normalizer: w.cfg.Adapter.Normalizer(auxPath),
		})
	}
	w.lastAuxRefresh = time.Now()
}

func (w *Watcher) attach(ctx context.Context, path, sessionID string, rotated bool) {
	_, span := telemetry.StartAttach(ctx, path)
	defer span.End()

	w.tail = newTailer(path, isDocumentOriented(w.cfg.Adapter))
	w.normalizer = w.cfg.Adapter.Normalizer(path)
	w.path = path
	w.aux = nil
	w.lastData = time.Now()
	w.waiting = false

	if rotated {
		// A rotation targets a different session file; the event log
		// starts over.
		w.events = nil
		w.byID = make(map[string]int)
		w.lastUsage = nil
		w.emit(Rotated{Path: path})
	} else {
		w.emit(Attached{SessionID: sessionID, Path: path})
	}
	w.sessionID = sessionID
	w.state = StateAttached
}

// findTarget returns the file to follow, its session id, and any
// auxiliary files of the named session.
func (w *Watcher) findTarget() (path, sessionID string, auxFiles []string) {
	if w.cfg.SessionID != "" {
		sessions, err := w.cfg.Adapter.Discover(w.cfg.LogRoot)
		if err != nil {
			return "", "", nil
		}
		for _, s := range sessions {
			if s.SessionID == w.cfg.SessionID {
				return s.PrimaryFile, s.SessionID, s.AuxiliaryFiles
			}
		}
		return "", "", nil
	}
	path, _ = w.newestCandidate()
	return path, "", nil
}

// newestCandidate walks the log root for the most recently modified file
// the adapter claims.
func (w *Watcher) newestCandidate() (string, time.Time) {
	type candidate struct {
		path string
		mod  time.Time
	}
	var candidates []candidate
	filepath.WalkDir(w.cfg.LogRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !w.cfg.Adapter.Probe(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		candidates = append(candidates, candidate{path: path, mod: info.ModTime()})
		return nil
	})
	if len(candidates) == 0 {
		return "", time.Time{}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].mod.After(candidates[j].mod)
	})
	return candidates[0].path, candidates[0].mod
}

// checkRotation switches to a strictly newer file in provider mode, with a
// debounce so near-simultaneous writes don't thrash.
func (w *Watcher) checkRotation() {
	if w.cfg.SessionID != "" || w.path == "" {
		return
	}
	newest, newestMod := w.newestCandidate()
	if newest == "" || newest == w.path {
		return
	}
	current, err := os.Stat(w.path)
	if err != nil {
		// Current file vanished; the newest candidate takes over.
		w.attach(context.Background(), newest, "", true)
		return
	}
	if newestMod.Sub(current.ModTime()) >= w.cfg.RotationDebounce {
		w.attach(context.Background(), newest, "", true)
	}
}

func (w *Watcher) readAndEmit() {
	if w.tail == nil {
		return
	}
	records, truncated, err := w.tail.readNew()
	if err != nil {
		if os.IsNotExist(err) {
			// The file is gone; the next poll re-resolves a target.
			w.tail = nil
			w.aux = nil
			w.state = StateWaiting
			if !w.waiting {
				w.waiting = true
				w.emit(Waiting{Idle: time.Since(w.lastData)})
			}
			return
		}
		w.state = StateDisconnected
		w.emit(Disconnected{Reason: err.Error()})
		return
	}
	if truncated {
		// Recovered internally: same file, tail re-read from offset 0.
		w.normalizer = w.cfg.Adapter.Normalizer(w.path)
		w.emit(Rotated{Path: w.path})
		records, _, err = w.tail.readNew()
		if err != nil {
			w.state = StateDisconnected
			w.emit(Disconnected{Reason: err.Error()})
			return
		}
	}
	batch := w.normalizeRecords(w.normalizer, w.path, records)
	batch = append(batch, w.readAux()...)
	if len(batch) == 0 {
		return
	}

	w.state = StateStreaming
	w.lastData = time.Now()
	w.waiting = false
	w.ingest(batch)
	w.emit(Events{
		Events:        batch,
		Sessions:      w.assembleAll(),
		ContextWindow: w.lastUsage,
	})
}

func (w *Watcher) normalizeRecords(n provider.Normalizer, path string, records [][]byte) []event.Event {
	var batch []event.Event
	for i, rec := range records {
		out, err := n.Normalize(provider.RawRecord{Line: i + 1, Data: rec})
		if err != nil {
			w.log.Warn("file-level parse failure", map[string]interface{}{
				"path": path, "error": err.Error(),
			})
			continue
		}
		batch = append(batch, out...)
	}
	return batch
}

// readAux drains the session's auxiliary files. A missing auxiliary is
// skipped: subagent files appear after their spawn.
func (w *Watcher) readAux() []event.Event {
	var batch []event.Event
	for _, a := range w.aux {
		records, truncated, err := a.tail.readNew()
		if err != nil {
			continue
		}
		if truncated {
			a.normalizer = w.cfg.Adapter.Normalizer(a.path)
			records, _, err = a.tail.readNew()
			if err != nil {
				continue
			}
		}
		batch = append(batch, w.normalizeRecords(a.normalizer, a.path, records)...)
	}
	return batch
}

// ingest appends new events to the held log, later duplicates replacing
// earlier occurrences in place, and refreshes the context-window snapshot.
func (w *Watcher) ingest(batch []event.Event) {
	for _, e := range batch {
		key := e.ID.String()
		if at, ok := w.byID[key]; ok {
			w.events[at] = e
		} else {
			w.byID[key] = len(w.events)
			w.events = append(w.events, e)
		}
		if usage, ok := e.Payload.(event.TokenUsage); ok && e.Stream.Type == event.StreamMain {
			w.lastUsage = w.contextWindow(e, usage)
		}
	}
}

func (w *Watcher) contextWindow(e event.Event, usage event.TokenUsage) *tokens.ContextWindowUsage {
	cw := &tokens.ContextWindowUsage{
		FreshInput:    usage.Input,
		CacheCreation: usage.CacheCreation,
		CacheRead:     usage.CacheRead,
		Output:        usage.Output,
	}
	model := w.cfg.Model
	if model == "" {
		if m, ok := e.Metadata["model"].(string); ok {
			model = m
		}
	}
	if spec, ok := tokens.Resolve(model); ok {
		limit := spec.MaxTokens
		cw.Limit = &limit
	} else if raw, ok := e.Metadata["context_window"]; ok {
		// Some providers report their window inline.
		if limit, ok := raw.(uint64); ok && limit > 0 {
			cw.Limit = &limit
		}
	}
	return cw
}

// assembleAll recomputes sessions from the full event log, one per session
// id, ordered for determinism.
func (w *Watcher) assembleAll() []*assemble.Session {
	grouped := make(map[string][]event.Event)
	var order []string
	for _, e := range w.events {
		key := e.SessionID.String()
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], e)
	}
	var sessions []*assemble.Session
	for _, key := range order {
		events := grouped[key]
		event.Sort(events)
		if s := assemble.Assemble(events); s != nil {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// checkIdle transitions Streaming to Waiting after the idle threshold when
// the provider has no newer file either.
func (w *Watcher) checkIdle() {
	if w.state != StateStreaming || w.waiting {
		return
	}
	idle := time.Since(w.lastData)
	if idle < w.cfg.IdleThreshold {
		return
	}
	if w.cfg.SessionID == "" {
		if newest, _ := w.newestCandidate(); newest != "" && newest != w.path {
			return // rotation will pick it up
		}
	}
	w.state = StateWaiting
	w.waiting = true
	w.emit(Waiting{Idle: idle})
}
