package promptstore

import (
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// nameIndex is a Bleve index over object names so lookups tolerate typos
// ("walet" still finds memories named "wallet"). It only resolves candidate
// memory ids; recency ordering comes from the SQLite index.
type nameIndex struct {
	index bleve.Index
}

type nameDoc struct {
	Name string `json:"name"`
}

// newNameIndex creates or opens a Bleve index at path. An existing index is
// opened and reused; remove the directory to force a rebuild after a mapping change.
func newNameIndex(path string) (*nameIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open name index: %w", openErr)
		}
		return &nameIndex{index: index}, nil
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	nameFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "keys" matches
	// exactly rather than stemming to "key".
	nameFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create name index: %w", err)
	}
	return &nameIndex{index: index}, nil
}

// add indexes an object name under a memory id.
func (n *nameIndex) add(memoryID, name string) error {
	return n.index.Index(memoryID, nameDoc{Name: name})
}

// remove deletes a memory id from the index.
func (n *nameIndex) remove(memoryID string) error {
	return n.index.Delete(memoryID)
}

// search returns candidate memory ids matching name. An exact match query runs
// first; when it finds nothing, a fuzzy pass widens the net.
func (n *nameIndex) search(name string, limit int) ([]string, error) {
	ids, err := n.run(bleve.NewMatchQuery(name), limit)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return ids, nil
	}
	// FuzzyQuery terms are not analyzed; lowercase to match the indexed tokens.
	fq := bleve.NewFuzzyQuery(strings.ToLower(name))
	fq.SetFuzziness(2)
	return n.run(fq, limit)
}

func (n *nameIndex) run(q blevequery.Query, limit int) ([]string, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := n.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("name search failed: %w", err)
	}
	ids := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (n *nameIndex) close() error {
	return n.index.Close()
}
