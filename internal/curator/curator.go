// Package curator keeps the queue topped up with videos picked around the
// configured concepts. It runs a periodic pipeline: pick a concept, generate
// search queries, search, filter, enrich metadata, rank, and add the winners
// to the queue.
package curator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hearth/internal/history"
	"hearth/internal/logging"
	"hearth/internal/media"
	"hearth/internal/queue"
	"hearth/internal/search"
)

const (
	defaultCheckInterval = 30 * time.Second
	enrichLimit          = 15
	recentConceptLimit   = 10
	historyContextLimit  = 20
)

// Phase names one step of the curation pipeline.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhasePickingConcept   Phase = "picking-concept"
	PhaseGeneratingQuery  Phase = "generating-queries"
	PhaseSearching        Phase = "searching"
	PhaseFetchingMetadata Phase = "fetching-metadata"
	PhaseCurating         Phase = "curating"
	PhaseAddingToQueue    Phase = "adding-to-queue"
)

// Status is a snapshot of the curator's state.
type Status struct {
	Running        bool       `json:"running"`
	Phase          Phase      `json:"phase"`
	CurrentConcept string     `json:"currentConcept,omitempty"`
	LastRun        *time.Time `json:"lastRun,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	VideosAdded    int        `json:"videosAdded"`
}

// Queue is the slice of the queue manager the curator drives.
type Queue interface {
	ActiveCount() int
	Items() []queue.Item
	Add(ctx context.Context, video media.Video, origin queue.Origin, concept string) (queue.Item, error)
}

// Searcher finds candidates and enriches them with full metadata.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]search.Candidate, error)
	Metadata(ctx context.Context, videoID string) (search.Candidate, error)
}

// History answers recency checks and provides context for query generation.
type History interface {
	IsRecentlyPlayed(ctx context.Context, videoID string) (bool, error)
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Brain is the language-model surface used for picking, generating, and
// ranking. An unavailable brain degrades every step to a deterministic
// fallback.
type Brain interface {
	Available() bool
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// Notifier announces curated additions. May be nil.
type Notifier interface {
	NotifyCurationAdded(ctx context.Context, title, concept string) error
}

// Options tunes the pipeline.
type Options struct {
	// QueueSize is the active-item watermark the curator refills to.
	QueueSize int
	// Concepts are the themes to curate around.
	Concepts []string
	// CheckInterval is the refill cadence.
	CheckInterval time.Duration
	// MinDuration and MaxDuration bound acceptable video lengths.
	MinDuration time.Duration
	MaxDuration time.Duration
	// Clock overrides the time source (for tests).
	Clock func() time.Time
}

// Curator owns the curation loop.
type Curator struct {
	queue    Queue
	searcher Searcher
	history  History
	brain    Brain
	notifier Notifier
	logger   *slog.Logger
	opts     Options

	mu              sync.Mutex
	status          Status
	pipelineRunning bool
	recentConcepts  []string
	cancel          context.CancelFunc
	subs            map[int]func(Status)
	nextSub         int
}

// New constructs a curator. Start must be called to begin the loop.
func New(q Queue, searcher Searcher, hist History, brain Brain, notifier Notifier, logger *slog.Logger, opts Options) *Curator {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaultCheckInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 5
	}
	return &Curator{
		queue:    q,
		searcher: searcher,
		history:  hist,
		brain:    brain,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "curator"),
		opts:     opts,
		status:   Status{Phase: PhaseIdle},
		subs:     make(map[int]func(Status)),
	}
}

// Status returns a snapshot of the curator's state.
func (c *Curator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnStatus registers a status observer and returns its unsubscribe function.
func (c *Curator) OnStatus(fn func(Status)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Start begins the periodic refill loop. The first check runs immediately.
func (c *Curator) Start() {
	c.mu.Lock()
	if c.status.Running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.status.Running = true
	c.status.Phase = PhaseIdle
	st := c.status
	c.mu.Unlock()

	c.logger.Info("curation started")
	c.emit(st)
	go c.loop(ctx)
}

// Stop halts the loop. A pipeline already in flight finishes its run.
func (c *Curator) Stop() {
	c.mu.Lock()
	if !c.status.Running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.cancel = nil
	c.status.Running = false
	c.status.Phase = PhaseIdle
	st := c.status
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.logger.Info("curation stopped")
	c.emit(st)
}

// Trigger runs the pipeline once in the background regardless of the queue
// watermark.
func (c *Curator) Trigger() {
	c.logger.Info("manual curation trigger")
	go c.runPipeline(context.Background())
}

// RunOnce runs the pipeline synchronously once.
func (c *Curator) RunOnce(ctx context.Context) {
	c.runPipeline(ctx)
}

func (c *Curator) loop(ctx context.Context) {
	c.checkAndRefill(ctx)
	ticker := time.NewTicker(c.opts.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndRefill(ctx)
		}
	}
}

func (c *Curator) checkAndRefill(ctx context.Context) {
	c.mu.Lock()
	running := c.status.Running
	c.mu.Unlock()
	if !running || len(c.opts.Concepts) == 0 {
		return
	}

	active := c.queue.ActiveCount()
	c.logger.Debug("refill check",
		logging.Int("active", active),
		logging.Int("target", c.opts.QueueSize))
	if active < c.opts.QueueSize {
		c.runPipeline(ctx)
	}
}

func (c *Curator) runPipeline(ctx context.Context) {
	c.mu.Lock()
	if c.pipelineRunning {
		c.mu.Unlock()
		c.logger.Debug("pipeline already running, skipping")
		return
	}
	c.pipelineRunning = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pipelineRunning = false
		c.mu.Unlock()
	}()

	if len(c.opts.Concepts) == 0 {
		return
	}
	if err := c.pipeline(ctx); err != nil {
		c.logger.Warn("curation pipeline failed", logging.Error(err))
		c.finishRun(err.Error())
		return
	}
}

func (c *Curator) pipeline(ctx context.Context) error {
	// Step 1: pick the concept.
	c.setPhase(PhasePickingConcept)
	queueTitles, queueVideoIDs := c.queueContext()
	concept := c.pickConcept(ctx, queueTitles)

	c.mu.Lock()
	c.status.CurrentConcept = concept
	c.recentConcepts = append(c.recentConcepts, concept)
	if len(c.recentConcepts) > recentConceptLimit {
		c.recentConcepts = c.recentConcepts[1:]
	}
	st := c.status
	c.mu.Unlock()
	c.emit(st)
	c.logger.Info("picked concept", logging.String(logging.FieldConcept, concept))

	// Step 2: generate search queries.
	c.setPhase(PhaseGeneratingQuery)
	queries := c.generateQueries(ctx, concept, queueTitles)
	c.logger.Debug("generated queries", logging.Int("count", len(queries)))

	// Step 3: search and filter.
	c.setPhase(PhaseSearching)
	candidates := c.searchAndFilter(ctx, queries, queueVideoIDs)
	c.logger.Info("search finished",
		logging.String(logging.FieldConcept, concept),
		logging.Int("candidates", len(candidates)))
	if len(candidates) == 0 {
		c.finishRun("no candidates found after filtering")
		return nil
	}

	// Step 4: enrich the front-runners with full metadata. Flat-playlist
	// results often carry no duration, so the bounds get re-checked here.
	c.setPhase(PhaseFetchingMetadata)
	enriched := c.enrich(ctx, candidates)
	if len(enriched) == 0 {
		c.finishRun("no candidates survived metadata checks")
		return nil
	}

	// Step 5: rank and approve.
	c.setPhase(PhaseCurating)
	approved := c.rankCandidates(ctx, concept, enriched)
	c.logger.Info("curation ranked",
		logging.Int("enriched", len(enriched)),
		logging.Int("approved", len(approved)))
	if len(approved) == 0 {
		c.finishRun("no videos approved by curator")
		return nil
	}

	// Step 6: add winners. With several concepts in rotation, one video per
	// run keeps the queue varied.
	c.setPhase(PhaseAddingToQueue)
	added := c.addApproved(ctx, concept, approved, enriched)

	c.mu.Lock()
	c.status.VideosAdded += added
	c.mu.Unlock()
	c.logger.Info("curation run complete",
		logging.String(logging.FieldConcept, concept),
		logging.Int("added", added))
	c.finishRun("")
	return nil
}

func (c *Curator) queueContext() ([]string, map[string]struct{}) {
	items := c.queue.Items()
	titles := make([]string, 0, len(items))
	ids := make(map[string]struct{}, len(items))
	for _, item := range items {
		ids[item.Video.ID] = struct{}{}
		if !item.Status.IsTerminal() {
			titles = append(titles, item.Video.Title)
		}
	}
	return titles, ids
}

func (c *Curator) searchAndFilter(ctx context.Context, queries []string, queueVideoIDs map[string]struct{}) []search.Candidate {
	var candidates []search.Candidate
	seen := make(map[string]struct{})
	for _, query := range queries {
		results, err := c.searcher.Search(ctx, query, 10)
		if err != nil {
			c.logger.Warn("search failed",
				logging.String("query", query),
				logging.Error(err))
			continue
		}
		for _, r := range results {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			if r.IsLive {
				continue
			}
			// Duration 0 means unknown (flat playlist); the metadata pass
			// re-checks those.
			if r.Duration > 0 && !c.durationOK(r.Duration) {
				continue
			}
			if _, queued := queueVideoIDs[r.ID]; queued {
				continue
			}
			played, err := c.history.IsRecentlyPlayed(ctx, r.ID)
			if err != nil {
				c.logger.Warn("history check failed", logging.Error(err))
			}
			if played {
				continue
			}
			candidates = append(candidates, r)
		}
	}
	return candidates
}

func (c *Curator) enrich(ctx context.Context, candidates []search.Candidate) []search.Candidate {
	toFetch := candidates
	if len(toFetch) > enrichLimit {
		toFetch = toFetch[:enrichLimit]
	}
	enriched := make([]search.Candidate, 0, len(toFetch))
	for _, candidate := range toFetch {
		full, err := c.searcher.Metadata(ctx, candidate.ID)
		if err != nil {
			c.logger.Debug("metadata fetch failed",
				logging.String(logging.FieldVideoID, candidate.ID),
				logging.Error(err))
			continue
		}
		if full.IsLive {
			continue
		}
		if full.Duration > 0 && !c.durationOK(full.Duration) {
			continue
		}
		enriched = append(enriched, full)
	}
	return enriched
}

func (c *Curator) addApproved(ctx context.Context, concept string, approved []string, enriched []search.Candidate) int {
	byID := make(map[string]search.Candidate, len(enriched))
	for _, cand := range enriched {
		byID[cand.ID] = cand
	}

	needed := c.opts.QueueSize - c.queue.ActiveCount()
	maxPerRun := needed
	if maxPerRun < 1 {
		maxPerRun = 1
	}
	if len(c.opts.Concepts) > 1 {
		maxPerRun = 1
	}

	added := 0
	for _, videoID := range approved {
		if added >= maxPerRun {
			break
		}
		candidate, ok := byID[videoID]
		if !ok {
			continue
		}
		if c.inQueue(videoID) {
			continue
		}
		if _, err := c.queue.Add(ctx, candidate.Video(), queue.OriginCurated, concept); err != nil {
			c.logger.Warn("queue add failed",
				logging.String(logging.FieldVideoID, videoID),
				logging.Error(err))
			continue
		}
		if c.notifier != nil {
			if err := c.notifier.NotifyCurationAdded(ctx, candidate.Title, concept); err != nil {
				c.logger.Debug("curation notification failed", logging.Error(err))
			}
		}
		added++
	}
	return added
}

func (c *Curator) inQueue(videoID string) bool {
	for _, item := range c.queue.Items() {
		if item.Video.ID == videoID {
			return true
		}
	}
	return false
}

func (c *Curator) durationOK(seconds float64) bool {
	d := time.Duration(seconds * float64(time.Second))
	if c.opts.MinDuration > 0 && d < c.opts.MinDuration {
		return false
	}
	if c.opts.MaxDuration > 0 && d > c.opts.MaxDuration {
		return false
	}
	return true
}

func (c *Curator) setPhase(phase Phase) {
	c.mu.Lock()
	c.status.Phase = phase
	st := c.status
	c.mu.Unlock()
	c.emit(st)
}

// finishRun stamps the run result and returns the curator to idle. An empty
// message clears the last error.
func (c *Curator) finishRun(errMessage string) {
	now := c.opts.Clock()
	c.mu.Lock()
	c.status.LastRun = &now
	c.status.LastError = strings.TrimSpace(errMessage)
	c.status.Phase = PhaseIdle
	st := c.status
	c.mu.Unlock()
	c.emit(st)
}

func (c *Curator) emit(st Status) {
	c.mu.Lock()
	fns := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
