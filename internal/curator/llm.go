package curator

import (
	"context"
	"encoding/json"
	"strings"

	"hearth/internal/llm"
	"hearth/internal/logging"
	"hearth/internal/search"
)

const (
	pickConceptPrompt = "Pick the next concept to search for a TV video queue. " +
		"Consider variety and what's already queued. " +
		"Return ONLY the concept string, no quotes, no explanation."

	generateQueriesPrompt = "You are a video curator for a home ambient TV channel. " +
		"Generate 3-5 YouTube search queries for the given concept. " +
		"Consider season, time of day, and queue variety. " +
		"Prefer documentaries, compilations, scenic footage. Avoid news/political content. " +
		`Return ONLY a JSON array of strings, e.g. ["query 1", "query 2"].`

	rankCandidatesPrompt = "You are a content safety and quality reviewer for a home TV. " +
		"REJECT: NSFW, violent, triggering, clickbait, reaction videos, ads, misleading titles, news/political. " +
		"APPROVE: matches concept, reputable channel, engaging visuals, good view count. " +
		`Return ONLY a JSON array of approved video IDs, best first, e.g. ["id1", "id2"].`
)

// pickConcept chooses the next concept, falling back to round-robin when no
// model is available or the model answers off-list.
func (c *Curator) pickConcept(ctx context.Context, queueTitles []string) string {
	concepts := c.opts.Concepts
	c.mu.Lock()
	recent := append([]string(nil), c.recentConcepts...)
	c.mu.Unlock()

	if !c.brain.Available() {
		return roundRobinConcept(concepts, recent)
	}

	now := c.opts.Clock()
	userPayload, err := json.Marshal(map[string]any{
		"availableConcepts":    concepts,
		"currentQueue":         queueTitles,
		"recentlyUsedConcepts": recent,
		"timeOfDay":            timeOfDay(now),
		"season":               season(now),
	})
	if err != nil {
		return roundRobinConcept(concepts, recent)
	}

	picked, err := c.brain.Complete(ctx, pickConceptPrompt, string(userPayload), 0.3)
	if err != nil {
		c.logger.Warn("concept pick failed, falling back to rotation", logging.Error(err))
		return roundRobinConcept(concepts, recent)
	}
	picked = strings.TrimSpace(strings.Trim(strings.TrimSpace(picked), `"`))
	for _, concept := range concepts {
		if strings.EqualFold(concept, picked) {
			return concept
		}
	}
	return concepts[0]
}

func roundRobinConcept(concepts, recent []string) string {
	if len(concepts) == 0 {
		return ""
	}
	if len(recent) == 0 {
		return concepts[0]
	}
	last := recent[len(recent)-1]
	for i, concept := range concepts {
		if strings.EqualFold(concept, last) {
			return concepts[(i+1)%len(concepts)]
		}
	}
	return concepts[0]
}

// generateQueries asks the model for search queries; without a model the
// concept itself is the query.
func (c *Curator) generateQueries(ctx context.Context, concept string, queueTitles []string) []string {
	if !c.brain.Available() {
		return []string{concept}
	}

	historyTitles := c.historyTitles(ctx)
	now := c.opts.Clock()
	userPayload, err := json.Marshal(map[string]any{
		"concept":       concept,
		"season":        season(now),
		"timeOfDay":     timeOfDay(now),
		"currentQueue":  queueTitles,
		"recentHistory": historyTitles,
	})
	if err != nil {
		return []string{concept}
	}

	content, err := c.brain.Complete(ctx, generateQueriesPrompt, string(userPayload), 0.7)
	if err != nil {
		c.logger.Warn("query generation failed, using concept directly", logging.Error(err))
		return []string{concept}
	}
	var queries []string
	if err := llm.DecodeJSON(content, &queries); err != nil || len(queries) == 0 {
		return []string{concept}
	}
	return queries
}

// rankCandidates asks the model to approve and order candidates; without a
// model everything passes in search order.
func (c *Curator) rankCandidates(ctx context.Context, concept string, candidates []search.Candidate) []string {
	allIDs := make([]string, len(candidates))
	known := make(map[string]struct{}, len(candidates))
	for i, cand := range candidates {
		allIDs[i] = cand.ID
		known[cand.ID] = struct{}{}
	}
	if !c.brain.Available() {
		return allIDs
	}

	type summary struct {
		ID          string  `json:"id"`
		Title       string  `json:"title"`
		Uploader    string  `json:"uploader"`
		Duration    float64 `json:"duration"`
		ViewCount   int64   `json:"viewCount"`
		Description string  `json:"description,omitempty"`
	}
	summaries := make([]summary, len(candidates))
	for i, cand := range candidates {
		desc := cand.Description
		if len(desc) > 200 {
			desc = desc[:200]
		}
		summaries[i] = summary{
			ID:          cand.ID,
			Title:       cand.Title,
			Uploader:    cand.Uploader,
			Duration:    cand.Duration,
			ViewCount:   cand.ViewCount,
			Description: desc,
		}
	}
	userPayload, err := json.Marshal(map[string]any{
		"concept":    concept,
		"candidates": summaries,
	})
	if err != nil {
		return allIDs
	}

	content, err := c.brain.Complete(ctx, rankCandidatesPrompt, string(userPayload), 0.3)
	if err != nil {
		c.logger.Warn("candidate ranking failed, keeping search order", logging.Error(err))
		return allIDs
	}
	var approved []string
	if err := llm.DecodeJSON(content, &approved); err != nil {
		return allIDs
	}
	filtered := approved[:0]
	for _, id := range approved {
		if _, ok := known[id]; ok {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

func (c *Curator) historyTitles(ctx context.Context) []string {
	entries, err := c.history.Recent(ctx, historyContextLimit)
	if err != nil {
		c.logger.Debug("history context fetch failed", logging.Error(err))
		return nil
	}
	titles := make([]string, len(entries))
	for i, entry := range entries {
		titles[i] = entry.Title
	}
	return titles
}
