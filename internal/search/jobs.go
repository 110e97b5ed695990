package search

import (
	"strconv"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/onboardly/onboardly/internal/store"
)

// JobIndex is an in-memory full-text index over job postings. Rebuilt from
// the database on startup; postings created at runtime are indexed as they
// are stored.
type JobIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	meta  map[string]store.JobPosting
}

func NewJobIndex() (*JobIndex, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &JobIndex{index: index, meta: make(map[string]store.JobPosting)}, nil
}

// Add indexes one posting. Re-adding the same ID replaces it.
func (ji *JobIndex) Add(j store.JobPosting) error {
	id := strconv.FormatInt(j.ID, 10)
	doc := map[string]interface{}{
		"title":       j.Title,
		"department":  j.Department,
		"location":    j.Location,
		"type":        j.EmploymentType,
		"description": j.Description,
	}
	ji.mu.Lock()
	defer ji.mu.Unlock()
	if err := ji.index.Index(id, doc); err != nil {
		return err
	}
	ji.meta[id] = j
	return nil
}

// Rebuild replaces the index contents with the given postings.
func (ji *JobIndex) Rebuild(jobs []store.JobPosting) error {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}
	meta := make(map[string]store.JobPosting, len(jobs))
	for _, j := range jobs {
		id := strconv.FormatInt(j.ID, 10)
		doc := map[string]interface{}{
			"title":       j.Title,
			"department":  j.Department,
			"location":    j.Location,
			"type":        j.EmploymentType,
			"description": j.Description,
		}
		if err := index.Index(id, doc); err != nil {
			return err
		}
		meta[id] = j
	}
	ji.mu.Lock()
	old := ji.index
	ji.index = index
	ji.meta = meta
	ji.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Search runs a query-string search and returns matching postings in score
// order, best first.
func (ji *JobIndex) Search(q string, limit int) ([]store.JobPosting, error) {
	if limit <= 0 {
		limit = 20
	}
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, limit, 0, false)

	ji.mu.RLock()
	defer ji.mu.RUnlock()
	res, err := ji.index.Search(req)
	if err != nil {
		return nil, err
	}
	var out []store.JobPosting
	for _, hit := range res.Hits {
		if j, ok := ji.meta[hit.ID]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}
