package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"contractx/logic/normalize"
	"contractx/storage"
	"contractx/types"
)

// DocumentStore 存 JSON 副本，调用方拿到的对象互不影响
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: map[string][]byte{}}
}

func (s *DocumentStore) Save(_ context.Context, doc *types.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.DocumentID]; ok {
		return fmt.Errorf("%w: document %s already exists", types.ErrConflict, doc.DocumentID)
	}
	s.docs[doc.DocumentID] = raw
	return nil
}

func (s *DocumentStore) Load(_ context.Context, documentID string) (*types.Document, error) {
	s.mu.RLock()
	raw, ok := s.docs[documentID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: document %s", types.ErrNotFound, documentID)
	}
	var doc types.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStore) List(ctx context.Context, filter storage.DocumentFilter) ([]storage.DocumentSummary, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	party := normalize.Key(filter.Party)
	out := []storage.DocumentSummary{}
	for _, id := range ids {
		doc, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		e := doc.CanonicalEntities
		if party != "" && !strings.Contains(normalize.Key(e.BuyerName), party) && !strings.Contains(normalize.Key(e.SellerName), party) {
			continue
		}
		if filter.DocumentType != "" && normalize.Key(e.DocumentType) != normalize.Key(filter.DocumentType) {
			continue
		}
		out = append(out, storage.DocumentSummary{
			DocumentID:     doc.DocumentID,
			DocumentType:   e.DocumentType,
			BuyerName:      e.BuyerName,
			SellerName:     e.SellerName,
			PageCount:      len(doc.Pages),
			OverallSummary: doc.OverallSummary,
			CreatedAt:      doc.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *DocumentStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	return nil
}

func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
