package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; sqlite serializes writes anyway and this keeps
	// in-memory databases on one connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sources_category ON sources(category);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL,
		url TEXT NOT NULL UNIQUE,
		title TEXT,
		org_highlight INTEGER,
		ingested_at INTEGER NOT NULL,
		indexed_at INTEGER,
		matched_at INTEGER,
		enriched_at INTEGER,
		FOREIGN KEY (source_id) REFERENCES sources(id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_match_frontier ON documents(matched_at) WHERE matched_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_documents_enriched ON documents(enriched_at);

	CREATE TABLE IF NOT EXISTS anchors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		author TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS anchor_components (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		anchor_id INTEGER NOT NULL,
		component_type TEXT NOT NULL,
		component_id TEXT NOT NULL,
		UNIQUE (anchor_id, component_type, component_id),
		FOREIGN KEY (anchor_id) REFERENCES anchors(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL,
		anchor_id INTEGER NOT NULL,
		score REAL NOT NULL,
		anchor_highlight INTEGER,
		created_at INTEGER NOT NULL,
		UNIQUE (document_id, anchor_id),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
		FOREIGN KEY (anchor_id) REFERENCES anchors(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_links_unresolved ON links(anchor_highlight) WHERE anchor_highlight IS NULL;
	CREATE INDEX IF NOT EXISTS idx_links_anchor ON links(anchor_id);
	CREATE INDEX IF NOT EXISTS idx_links_created ON links(created_at);

	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL,
		documents_matched INTEGER NOT NULL DEFAULT 0,
		links_created INTEGER NOT NULL DEFAULT 0,
		highlights_found INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertSource(ctx context.Context, src *models.Source) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO sources (name, category, is_active, created_at) VALUES (?, ?, ?, ?)`,
		src.Name, src.Category, boolToInt(src.IsActive), src.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source: %w", err)
	}
	return res.LastInsertId()
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) (int64, error) {
	// RETURNING rather than LastInsertId: when the upsert takes the UPDATE
	// branch, last_insert_rowid() still holds the previous insert's rowid.
	var id int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO documents (source_id, url, title, ingested_at, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET title = excluded.title
		RETURNING id`,
		doc.SourceID, doc.URL, doc.Title, doc.IngestedAt.Unix(), unixPtr(doc.IndexedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

func (c *Client) InsertAnchor(ctx context.Context, anchor *models.Anchor) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO anchors (name, description, author, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		anchor.Name, anchor.Description, anchor.Author, boolToInt(anchor.IsActive), anchor.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert anchor: %w", err)
	}
	anchorID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, comp := range anchor.Components {
		_, err = c.db.ExecContext(ctx, `
			INSERT INTO anchor_components (anchor_id, component_type, component_id)
			VALUES (?, ?, ?)
			ON CONFLICT(anchor_id, component_type, component_id) DO NOTHING`,
			anchorID, comp.Type, comp.ComponentID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert anchor component: %w", err)
		}
	}
	return anchorID, nil
}

// ActiveAnchors returns all active anchors with their component sets.
func (c *Client) ActiveAnchors(ctx context.Context) ([]models.Anchor, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, description, author, created_at
		FROM anchors WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchors: %w", err)
	}
	defer rows.Close()

	var anchors []models.Anchor
	byID := make(map[int64]int)
	for rows.Next() {
		var a models.Anchor
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Author, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan anchor: %w", err)
		}
		a.IsActive = true
		a.CreatedAt = time.Unix(createdAt, 0)
		byID[a.ID] = len(anchors)
		anchors = append(anchors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("anchor rows: %w", err)
	}

	compRows, err := c.db.QueryContext(ctx, `
		SELECT ac.id, ac.anchor_id, ac.component_type, ac.component_id
		FROM anchor_components ac
		JOIN anchors a ON a.id = ac.anchor_id
		WHERE a.is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchor components: %w", err)
	}
	defer compRows.Close()

	for compRows.Next() {
		var comp models.AnchorComponent
		if err := compRows.Scan(&comp.ID, &comp.AnchorID, &comp.Type, &comp.ComponentID); err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		if idx, ok := byID[comp.AnchorID]; ok {
			anchors[idx].Components = append(anchors[idx].Components, comp)
		}
	}
	if err := compRows.Err(); err != nil {
		return nil, fmt.Errorf("component rows: %w", err)
	}

	return anchors, nil
}

// MatchFrontier returns documents that are indexed but not yet matched,
// joined to their source category for pre-filtering.
func (c *Client) MatchFrontier(ctx context.Context, limit int) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT d.id, d.source_id, d.url, d.title, s.category, d.ingested_at, d.indexed_at
		FROM documents d
		JOIN sources s ON s.id = d.source_id
		WHERE d.indexed_at IS NOT NULL AND d.matched_at IS NULL
		ORDER BY d.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match frontier: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var ingestedAt, indexedAt int64
		if err := rows.Scan(&d.ID, &d.SourceID, &d.URL, &d.Title, &d.SourceCategory, &ingestedAt, &indexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.IngestedAt = time.Unix(ingestedAt, 0)
		t := time.Unix(indexedAt, 0)
		d.IndexedAt = &t
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("frontier rows: %w", err)
	}
	return docs, nil
}

// CommitMatchBatch upserts the batch's links and advances matched_at for the
// given documents in one transaction. matched_at is only set if still null,
// so re-running a committed batch is a no-op.
func (c *Client) CommitMatchBatch(ctx context.Context, links []models.Link, docIDs []int64, now time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin match batch: %w", err)
	}
	defer tx.Rollback()

	for _, link := range links {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO links (document_id, anchor_id, score, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(document_id, anchor_id) DO UPDATE SET score = excluded.score`,
			link.DocumentID, link.AnchorID, link.Score, now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert link: %w", err)
		}
	}

	for _, id := range docIDs {
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET matched_at = COALESCE(matched_at, ?) WHERE id = ?`,
			now.Unix(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to advance matched_at: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match batch: %w", err)
	}
	return nil
}

// UnresolvedLinks is the classifier frontier: links whose highlight flag has
// not been decided, regardless of the document's enriched_at. Links to
// inactive anchors are left untouched.
func (c *Client) UnresolvedLinks(ctx context.Context, limit int) ([]models.LinkCandidate, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT l.id, l.document_id, l.anchor_id, a.name, s.category, l.score
		FROM links l
		JOIN documents d ON d.id = l.document_id
		JOIN sources s ON s.id = d.source_id
		JOIN anchors a ON a.id = l.anchor_id
		WHERE l.anchor_highlight IS NULL AND a.is_active = 1
		ORDER BY l.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved links: %w", err)
	}
	defer rows.Close()

	var candidates []models.LinkCandidate
	for rows.Next() {
		var lc models.LinkCandidate
		if err := rows.Scan(&lc.LinkID, &lc.DocumentID, &lc.AnchorID, &lc.AnchorName, &lc.SourceCategory, &lc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan link candidate: %w", err)
		}
		candidates = append(candidates, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unresolved link rows: %w", err)
	}
	return candidates, nil
}

// EmptyEnrichFrontier returns documents that are matched, not yet enriched,
// and have no unresolved links. This covers documents with no links at all
// (absence of match is terminal) and documents whose links were all resolved
// in an earlier pass, such as a rematch after a reset. Both get stamped with
// org_highlight recomputed from whatever resolved links exist.
func (c *Client) EmptyEnrichFrontier(ctx context.Context, limit int) ([]int64, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT d.id
		FROM documents d
		WHERE d.matched_at IS NOT NULL AND d.enriched_at IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM links l
			WHERE l.document_id = d.id AND l.anchor_highlight IS NULL
		  )
		ORDER BY d.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query empty enrich frontier: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("empty frontier rows: %w", err)
	}
	return ids, nil
}

// LinkHighlight carries one resolved flag for a classifier batch commit.
type LinkHighlight struct {
	LinkID    int64
	Highlight bool
}

// CommitEnrichBatch writes resolved flags, recomputes each touched document's
// org_highlight from all of its links, and stamps enriched_at, atomically.
// enriched_at records the most recent batch touching the document.
func (c *Client) CommitEnrichBatch(ctx context.Context, updates []LinkHighlight, docIDs []int64, now time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin enrich batch: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		_, err = tx.ExecContext(ctx,
			`UPDATE links SET anchor_highlight = ? WHERE id = ?`,
			boolToInt(u.Highlight), u.LinkID,
		)
		if err != nil {
			return fmt.Errorf("failed to update link highlight: %w", err)
		}
	}

	for _, id := range docIDs {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET
				org_highlight = EXISTS (
					SELECT 1 FROM links l WHERE l.document_id = documents.id AND l.anchor_highlight = 1
				),
				enriched_at = ?
			WHERE id = ?`,
			now.Unix(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to update document highlight: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit enrich batch: %w", err)
	}
	return nil
}

// ScoreSample is one historical link score with the dimensions the threshold
// statistics aggregate over.
type ScoreSample struct {
	AnchorID int64
	Category string
	Score    float64
}

// ScoreSamples returns link scores for active anchors created since the given
// time, for the statistics service to aggregate.
func (c *Client) ScoreSamples(ctx context.Context, since time.Time) ([]ScoreSample, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT l.anchor_id, s.category, l.score
		FROM links l
		JOIN documents d ON d.id = l.document_id
		JOIN sources s ON s.id = d.source_id
		JOIN anchors a ON a.id = l.anchor_id
		WHERE a.is_active = 1 AND l.created_at >= ?`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query score samples: %w", err)
	}
	defer rows.Close()

	var samples []ScoreSample
	for rows.Next() {
		var s ScoreSample
		if err := rows.Scan(&s.AnchorID, &s.Category, &s.Score); err != nil {
			return nil, fmt.Errorf("failed to scan score sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("score sample rows: %w", err)
	}
	return samples, nil
}

// Highlights is the delivery query surface: resolved links enriched within
// the window, joined to document, anchor and source identity.
func (c *Client) Highlights(ctx context.Context, since, until time.Time) ([]models.Highlight, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT l.id, d.id, d.url, d.title, a.id, a.name, s.name, s.category,
		       l.score, l.anchor_highlight, COALESCE(d.org_highlight, 0), d.enriched_at
		FROM links l
		JOIN documents d ON d.id = l.document_id
		JOIN sources s ON s.id = d.source_id
		JOIN anchors a ON a.id = l.anchor_id
		WHERE l.anchor_highlight IS NOT NULL
		  AND d.enriched_at IS NOT NULL
		  AND d.enriched_at >= ? AND d.enriched_at < ?
		ORDER BY l.score DESC`,
		since.Unix(), until.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query highlights: %w", err)
	}
	defer rows.Close()

	var highlights []models.Highlight
	for rows.Next() {
		var h models.Highlight
		var anchorHL, orgHL int
		var enrichedAt int64
		err := rows.Scan(&h.LinkID, &h.DocumentID, &h.DocumentURL, &h.DocumentTitle,
			&h.AnchorID, &h.AnchorName, &h.SourceName, &h.SourceCategory,
			&h.Score, &anchorHL, &orgHL, &enrichedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan highlight: %w", err)
		}
		h.AnchorHighlight = anchorHL == 1
		h.OrgHighlight = orgHL == 1
		h.EnrichedAt = time.Unix(enrichedAt, 0)
		highlights = append(highlights, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("highlight rows: %w", err)
	}
	return highlights, nil
}

// MarkIndexed advances indexed_at for the given documents. Already-indexed
// documents keep their original timestamp, so the call is an idempotent
// no-op for them.
func (c *Client) MarkIndexed(ctx context.Context, docIDs []int64, now time.Time) error {
	for _, id := range docIDs {
		_, err := c.db.ExecContext(ctx,
			`UPDATE documents SET indexed_at = COALESCE(indexed_at, ?) WHERE id = ?`,
			now.Unix(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to advance indexed_at: %w", err)
		}
	}
	return nil
}

// FrontierCounts reports how much work awaits each pipeline stage.
type FrontierCounts struct {
	AwaitingIndex  int
	AwaitingMatch  int
	UnresolvedLink int
}

func (c *Client) CountFrontiers(ctx context.Context) (FrontierCounts, error) {
	var fc FrontierCounts
	err := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE indexed_at IS NULL),
			(SELECT COUNT(*) FROM documents WHERE indexed_at IS NOT NULL AND matched_at IS NULL),
			(SELECT COUNT(*) FROM links WHERE anchor_highlight IS NULL)`,
	).Scan(&fc.AwaitingIndex, &fc.AwaitingMatch, &fc.UnresolvedLink)
	if err != nil {
		return fc, fmt.Errorf("failed to count frontiers: %w", err)
	}
	return fc, nil
}

// ResetDocuments deletes the documents' links and clears their matching and
// enrichment state, re-admitting them to the match frontier.
func (c *Client) ResetDocuments(ctx context.Context, docIDs []int64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, id := range docIDs {
		if _, err = tx.ExecContext(ctx, `DELETE FROM links WHERE document_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete links: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET matched_at = NULL, enriched_at = NULL, org_highlight = NULL WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to reset document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	logger.Info("Documents reset for reprocessing", zap.Int("count", len(docIDs)))
	return nil
}

// ResetAnchor deletes the anchor's links and re-opens the match frontier for
// every document, so the next run re-scores the corpus against it.
func (c *Client) ResetAnchor(ctx context.Context, anchorID int64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin anchor reset: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM links WHERE anchor_id = ?`, anchorID); err != nil {
		return fmt.Errorf("failed to delete anchor links: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET matched_at = NULL, enriched_at = NULL WHERE indexed_at IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("failed to reopen match frontier: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit anchor reset: %w", err)
	}
	logger.Info("Anchor reset for reprocessing", zap.Int64("anchor_id", anchorID))
	return nil
}

func (c *Client) InsertRun(ctx context.Context, run *models.PipelineRun) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, started_at, status) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), run.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (c *Client) FinishRun(ctx context.Context, run *models.PipelineRun) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET finished_at = ?, status = ?,
			documents_matched = ?, links_created = ?, highlights_found = ?
		WHERE id = ?`,
		time.Now().Unix(), run.Status,
		run.DocumentsMatched, run.LinksCreated, run.HighlightsFound, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func (c *Client) RecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, documents_matched, links_created, highlights_found
		FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.PipelineRun
	for rows.Next() {
		var r models.PipelineRun
		var startedAt int64
		var finishedAt sql.NullInt64
		err := rows.Scan(&r.ID, &startedAt, &finishedAt, &r.Status,
			&r.DocumentsMatched, &r.LinksCreated, &r.HighlightsFound)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run rows: %w", err)
	}
	return runs, nil
}

// GetDocument returns one document with its timestamps, mainly for tests and
// the admin surface.
func (c *Client) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	var d models.Document
	var ingestedAt int64
	var indexedAt, matchedAt, enrichedAt, orgHighlight sql.NullInt64
	err := c.db.QueryRowContext(ctx, `
		SELECT d.id, d.source_id, d.url, d.title, s.category,
		       d.org_highlight, d.ingested_at, d.indexed_at, d.matched_at, d.enriched_at
		FROM documents d
		JOIN sources s ON s.id = d.source_id
		WHERE d.id = ?`, id).Scan(
		&d.ID, &d.SourceID, &d.URL, &d.Title, &d.SourceCategory,
		&orgHighlight, &ingestedAt, &indexedAt, &matchedAt, &enrichedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	d.IngestedAt = time.Unix(ingestedAt, 0)
	d.IndexedAt = timePtr(indexedAt)
	d.MatchedAt = timePtr(matchedAt)
	d.EnrichedAt = timePtr(enrichedAt)
	if orgHighlight.Valid {
		v := orgHighlight.Int64 == 1
		d.OrgHighlight = &v
	}
	return &d, nil
}

// LinksForDocument returns all links for one document, for tests and the
// admin surface.
func (c *Client) LinksForDocument(ctx context.Context, docID int64) ([]models.Link, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, document_id, anchor_id, score, anchor_highlight, created_at
		FROM links WHERE document_id = ? ORDER BY anchor_id`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []models.Link
	for rows.Next() {
		var l models.Link
		var highlight sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.AnchorID, &l.Score, &highlight, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		if highlight.Valid {
			v := highlight.Int64 == 1
			l.AnchorHighlight = &v
		}
		l.CreatedAt = time.Unix(createdAt, 0)
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("link rows: %w", err)
	}
	return links, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
