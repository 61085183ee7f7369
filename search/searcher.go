package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

// Paging defaults.
const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// DefaultMinScore is the cosine similarity a chunk needs to enter the
// vector tier.
const DefaultMinScore float32 = 0.60

// maxHistoryDetail caps the query text stored in the audit log.
const maxHistoryDetail = 500

// Mode names the ranking tier that produced a result page.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
	ModeNone    Mode = "none"
)

// Store is the part of the archive store search reads and audits through.
type Store interface {
	storage.ChunkRepository
	storage.AuditRepository
}

// Query is one search request.
type Query struct {
	UserID core.UserID
	Text   string
	Page   int // 1-based, defaults to 1
	Limit  int // defaults to DefaultLimit, capped at MaxLimit
}

// Results is one page of ranked hits.
type Results struct {
	Items      []*core.SearchResult
	Pagination core.Pagination
	Mode       Mode
}

// Engine ranks a user's transcript chunks against free-text queries.
type Engine struct {
	store    Store
	embedder ai.Embedder
	cache    *vectorCache
	minScore float32
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithEmbedder enables the vector tier.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(e *Engine) error {
		e.embedder = embedder
		return nil
	}
}

// WithQueryCache sizes the query embedding cache. A size of 0 disables it.
func WithQueryCache(size int, ttl time.Duration) Option {
	return func(e *Engine) error {
		if size < 0 || ttl < 0 {
			return fmt.Errorf("invalid query cache size %d ttl %s", size, ttl)
		}
		if size == 0 {
			e.cache = nil
			return nil
		}
		e.cache = newVectorCache(size, ttl)
		return nil
	}
}

// WithMinScore sets the cosine similarity floor of the vector tier.
func WithMinScore(score float32) Option {
	return func(e *Engine) error {
		if score < -1 || score > 1 {
			return fmt.Errorf("min score %v outside [-1, 1]", score)
		}
		e.minScore = score
		return nil
	}
}

// NewEngine creates a search engine over store. Without WithEmbedder only
// the lexical tier is used.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	e := &Engine{
		store:    store,
		cache:    newVectorCache(DefaultCacheSize, DefaultCacheTTL),
		minScore: DefaultMinScore,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "search")
	return e, nil
}

// normalize applies paging defaults and rejects queries with no user or text.
func normalize(q Query) (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.UserID == 0 {
		return q, ErrUserRequired
	}
	if q.Text == "" {
		return q, ErrEmptyQuery
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q, nil
}

// Search ranks the user's chunks against the query and returns one page.
func (e *Engine) Search(ctx context.Context, query Query) (*Results, error) {
	return e.SearchWithMonitor(ctx, query, nil)
}

// SearchWithMonitor is Search with callbacks at each step.
// Only a query without user or text is an error; every other failure
// degrades to a lexical or empty result.
func (e *Engine) SearchWithMonitor(ctx context.Context, query Query, monitor SearchMonitor) (*Results, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	q, err := normalize(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	monitor.Start(q)

	ranked, mode := e.rank(ctx, q, monitor)

	from, to := core.PageBounds(len(ranked), q.Page, q.Limit)
	results := &Results{
		Items:      ranked[from:to],
		Pagination: core.NewPagination(len(ranked), q.Page, q.Limit),
		Mode:       mode,
	}

	e.recordHistory(ctx, q)
	searchesTotal.WithLabelValues(string(mode)).Inc()
	searchDuration.Observe(time.Since(start).Seconds())
	e.logger.Debug("search complete",
		"user_id", q.UserID,
		"mode", mode,
		"hits", len(ranked),
		"page_posts", resultPostIDs(results.Items))
	monitor.Finish(results)
	return results, nil
}

// rank returns every matching chunk in rank order and the tier used.
func (e *Engine) rank(ctx context.Context, q Query, monitor SearchMonitor) ([]*core.SearchResult, Mode) {
	chunks, err := e.store.ChunksForUser(ctx, q.UserID)
	if err != nil {
		e.logger.Error("error loading chunks for search", "user_id", q.UserID, "err", err)
		return []*core.SearchResult{}, ModeNone
	}

	embedded := 0
	for _, sc := range chunks {
		if sc.Chunk.Embedding.Present() {
			embedded++
		}
	}
	monitor.AfterChunkLoad(len(chunks), embedded)
	if len(chunks) == 0 {
		return []*core.SearchResult{}, ModeNone
	}

	if e.embedder != nil && embedded > 0 {
		ranked, err := e.vectorRank(ctx, q.Text, chunks)
		monitor.AfterVectorSearch(len(ranked), err)
		if err != nil {
			e.logger.Warn("vector search unavailable, using lexical ranking", "err", err)
		} else if len(ranked) > 0 {
			return ranked, ModeVector
		}
	}

	ranked := lexicalRank(q.Text, chunks)
	monitor.AfterLexicalSearch(len(ranked))
	if len(ranked) == 0 {
		return ranked, ModeNone
	}
	return ranked, ModeLexical
}

func (e *Engine) queryVector(ctx context.Context, text string) ([]float32, error) {
	model := e.embedder.Model()
	if vec, ok := e.cache.get(model, text); ok {
		return vec, nil
	}
	vec, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	vec = core.NormalizeVector(vec)
	e.cache.put(model, text, vec)
	return vec, nil
}

// vectorRank scores embedded chunks by cosine similarity. Chunks without
// an embedding or below the score floor are left out. Ties fall back to
// post id, then start time.
func (e *Engine) vectorRank(ctx context.Context, text string, chunks []*core.ScopedChunk) ([]*core.SearchResult, error) {
	qvec, err := e.queryVector(ctx, text)
	if err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0)
	for _, sc := range chunks {
		if !sc.Chunk.Embedding.Present() {
			continue
		}
		score := core.CosineSimilarity(qvec, sc.Chunk.Embedding.Vector())
		if score < e.minScore {
			continue
		}
		results = append(results, &core.SearchResult{
			Chunk:     sc.Chunk,
			PostID:    sc.Chunk.PostID,
			PostTitle: sc.PostTitle,
			Score:     score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.PostID != b.PostID {
			return a.PostID < b.PostID
		}
		return a.Chunk.StartSec < b.Chunk.StartSec
	})
	return results, nil
}

// lexicalRank scores chunks by keyword matches. Ties go to the more
// recent post, then the higher post id, then the earlier chunk.
func lexicalRank(text string, chunks []*core.ScopedChunk) []*core.SearchResult {
	lq := newLexicalQuery(text)

	type hit struct {
		result  *core.SearchResult
		created time.Time
	}
	hits := make([]hit, 0)
	for _, sc := range chunks {
		n := lq.score(sc.Chunk.Text)
		if n == 0 {
			continue
		}
		hits = append(hits, hit{
			result: &core.SearchResult{
				Chunk:     sc.Chunk,
				PostID:    sc.Chunk.PostID,
				PostTitle: sc.PostTitle,
				Score:     float32(n),
			},
			created: sc.PostCreatedAt,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.result.Score != b.result.Score {
			return a.result.Score > b.result.Score
		}
		if !a.created.Equal(b.created) {
			return a.created.After(b.created)
		}
		if a.result.PostID != b.result.PostID {
			return a.result.PostID > b.result.PostID
		}
		return a.result.Chunk.StartSec < b.result.Chunk.StartSec
	})

	results := make([]*core.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = h.result
	}
	return results
}

// recordHistory appends the search to the audit log. Failures are logged
// and never fail the search.
func (e *Engine) recordHistory(ctx context.Context, q Query) {
	detail := q.Text
	if utf8.RuneCountInString(detail) > maxHistoryDetail {
		detail = string([]rune(detail)[:maxHistoryDetail])
	}
	_, err := e.store.AppendAudit(context.WithoutCancel(ctx), &core.AuditEntry{
		Action: core.AuditSearch,
		UserID: q.UserID,
		Detail: detail,
	})
	if err != nil {
		e.logger.Warn("failed to record search history", "user_id", q.UserID, "err", err)
	}
}

// History returns the user's past searches, newest first.
func (e *Engine) History(ctx context.Context, userID core.UserID, page, limit int) ([]*core.AuditEntry, core.Pagination, error) {
	if userID == 0 {
		return nil, core.Pagination{}, ErrUserRequired
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	entries, total, err := e.store.ListAudit(ctx, storage.AuditFilter{UserID: userID, Action: core.AuditSearch}, core.PageOffset(page, limit), limit)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	return entries, core.NewPagination(total, page, limit), nil
}
