package vocab

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aisight/mitsuke/internal/models"
)

// flushLocked writes the vocabulary document atomically (write-to-temp then
// rename) so a crash never leaves a partial document. One retry with a short
// backoff; on persistent failure the in-memory state stays authoritative and
// dirty so the next prune cycle retries. Caller must hold m.mu.
func (m *Manager) flushLocked() error {
	doc := models.VocabularyDocument{
		BaseTerms:    m.baseList,
		DynamicTerms: make(map[string]models.VocabularyEntry, len(m.dynamic)),
	}
	for term, entry := range m.dynamic {
		doc.DynamicTerms[term] = entry
	}

	err := writeDocument(m.path, &doc)
	if err != nil {
		time.Sleep(50 * time.Millisecond)
		err = writeDocument(m.path, &doc)
	}
	if err != nil {
		m.dirty = true
		return fmt.Errorf("failed to persist vocabulary: %w", err)
	}
	m.dirty = false
	return nil
}

func writeDocument(path string, doc *models.VocabularyDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// loadDocument reads the persisted vocabulary document at path.
// A missing file is not an error; it returns (nil, nil).
func loadDocument(path string) (*models.VocabularyDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var doc models.VocabularyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary document: %w", err)
	}
	return &doc, nil
}
