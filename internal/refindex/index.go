package refindex

import "github.com/starford/ehwaz/internal/models"

// RefIndex defines the interface for cross-reference index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type RefIndex interface {
	UpsertDocument(d DocRow, refs []models.Ref) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	AllPaths() (map[string]struct{}, error)
	Backlinks(targetDoc, targetObj string) ([]models.Backlink, error)
	RefsFrom(sourceDoc string) ([]models.Ref, error)
	Pending() ([]models.Ref, error)
	Broken() ([]models.BrokenLink, error)
	Graph() ([]GraphNode, []GraphEdge, error)
	Close() error
}

// Verify *DB satisfies RefIndex at compile time.
var _ RefIndex = (*DB)(nil)
