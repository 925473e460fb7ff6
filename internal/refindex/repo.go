package refindex

import (
	"fmt"
	"time"

	"github.com/starford/ehwaz/internal/models"
)

// DocRow represents a row in the documents table.
type DocRow struct {
	Path      string
	Checksum  string
	Stamp     string
	UpdatedAt time.Time
}

// UpsertDocument inserts or replaces a document row and its outgoing
// references within a transaction.
func (db *DB) UpsertDocument(d DocRow, refs []models.Ref) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("refindex: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, checksum, stamp, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			stamp      = excluded.stamp,
			updated_at = excluded.updated_at
	`, d.Path, d.Checksum, d.Stamp, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("refindex: upsert document: %w", err)
	}

	// Replace references: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM xrefs WHERE source_doc = ?`, d.Path)
	if len(refs) > 0 {
		stmt, err := tx.Prepare(`
			INSERT OR IGNORE INTO xrefs (source_doc, source_obj, field, target_doc, target_obj, pending)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("refindex: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range refs {
			if _, err := stmt.Exec(d.Path, r.SourceObj, r.Field, r.TargetDoc, r.TargetObj, r.Pending); err != nil {
				return fmt.Errorf("refindex: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document row and its outgoing references.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("refindex: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM xrefs WHERE source_doc = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if
// not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("refindex: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// AllPaths returns every indexed document path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("refindex: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// Backlinks returns every reference pointing at the given object. An empty
// targetObj matches any object in the target document.
func (db *DB) Backlinks(targetDoc, targetObj string) ([]models.Backlink, error) {
	q := `SELECT source_doc, source_obj, field FROM xrefs WHERE target_doc = ?`
	args := []any{targetDoc}
	if targetObj != "" {
		q += ` AND target_obj = ?`
		args = append(args, targetObj)
	}
	q += ` ORDER BY source_doc, source_obj, field`
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("refindex: backlinks: %w", err)
	}
	defer rows.Close()

	var out []models.Backlink
	for rows.Next() {
		var b models.Backlink
		if err := rows.Scan(&b.SourceDoc, &b.SourceObj, &b.Field); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RefsFrom returns every outgoing reference of a document.
func (db *DB) RefsFrom(sourceDoc string) ([]models.Ref, error) {
	rows, err := db.conn.Query(`
		SELECT source_doc, source_obj, field, target_doc, target_obj, pending
		FROM xrefs WHERE source_doc = ?
		ORDER BY source_obj, field
	`, sourceDoc)
	if err != nil {
		return nil, fmt.Errorf("refindex: refs from: %w", err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

// Pending returns every cross-document reference in the workspace.
func (db *DB) Pending() ([]models.Ref, error) {
	rows, err := db.conn.Query(`
		SELECT source_doc, source_obj, field, target_doc, target_obj, pending
		FROM xrefs WHERE pending = 1
		ORDER BY source_doc, source_obj, field
	`)
	if err != nil {
		return nil, fmt.Errorf("refindex: pending: %w", err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

// Broken returns cross-document references whose target document is not
// present in the workspace.
func (db *DB) Broken() ([]models.BrokenLink, error) {
	rows, err := db.conn.Query(`
		SELECT r.source_doc, r.source_obj, r.field, r.target_doc, r.target_obj
		FROM xrefs r
		LEFT JOIN documents d ON r.target_doc = d.path
		WHERE r.pending = 1 AND d.path IS NULL
		ORDER BY r.source_doc, r.source_obj, r.field
	`)
	if err != nil {
		return nil, fmt.Errorf("refindex: broken: %w", err)
	}
	defer rows.Close()

	var out []models.BrokenLink
	for rows.Next() {
		var b models.BrokenLink
		if err := rows.Scan(&b.SourceDoc, &b.SourceObj, &b.Field, &b.TargetDoc, &b.TargetObj); err != nil {
			return nil, err
		}
		b.Reason = "target document missing"
		out = append(out, b)
	}
	return out, rows.Err()
}

// GraphNode is one document node in the reference graph.
type GraphNode struct {
	Path  string `json:"path"`
	Stamp string `json:"stamp,omitempty"`
}

// GraphEdge is one directed document-to-document edge, aggregated over the
// individual field references.
type GraphEdge struct {
	SourceDoc string `json:"source_doc"`
	TargetDoc string `json:"target_doc"`
	Count     int    `json:"count"`
}

// Graph returns a workspace-wide snapshot: every indexed document and the
// aggregated reference edges between documents.
func (db *DB) Graph() ([]GraphNode, []GraphEdge, error) {
	rows, err := db.conn.Query(`SELECT path, stamp FROM documents ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("refindex: graph nodes: %w", err)
	}
	defer rows.Close()
	var nodes []GraphNode
	for rows.Next() {
		var n GraphNode
		if err := rows.Scan(&n.Path, &n.Stamp); err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	erows, err := db.conn.Query(`
		SELECT source_doc, target_doc, COUNT(*)
		FROM xrefs
		GROUP BY source_doc, target_doc
		ORDER BY source_doc, target_doc
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("refindex: graph edges: %w", err)
	}
	defer erows.Close()
	var edges []GraphEdge
	for erows.Next() {
		var e GraphEdge
		if err := erows.Scan(&e.SourceDoc, &e.TargetDoc, &e.Count); err != nil {
			return nil, nil, err
		}
		edges = append(edges, e)
	}
	return nodes, edges, erows.Err()
}

type refRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRefs(rows refRows) ([]models.Ref, error) {
	var out []models.Ref
	for rows.Next() {
		var r models.Ref
		if err := rows.Scan(&r.SourceDoc, &r.SourceObj, &r.Field, &r.TargetDoc, &r.TargetObj, &r.Pending); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
