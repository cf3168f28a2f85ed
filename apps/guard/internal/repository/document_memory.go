package repository

import (
	"context"
	"sync"

	"EduServer/model"
)

// MemoryDocumentStore 单进程实现，语义与 RedisDocumentStore 一致。
// Redis 不可用时作为降级存储，也用于测试。
type MemoryDocumentStore struct {
	mu      sync.Mutex
	docs    map[string]*memDoc
	subs    map[string]map[int]chan struct{}
	nextSub int
}

type memDoc struct {
	fields  map[string]string
	version int64
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs: make(map[string]*memDoc),
		subs: make(map[string]map[int]chan struct{}),
	}
}

func (s *MemoryDocumentStore) GetDocument(_ context.Context, accountID string) (*model.AccountSecurityState, error) {
	s.mu.Lock()
	doc, ok := s.docs[accountID]
	var (
		fields  map[string]string
		version int64
	)
	if ok {
		fields = make(map[string]string, len(doc.fields))
		for k, v := range doc.fields {
			fields[k] = v
		}
		version = doc.version
	}
	s.mu.Unlock()

	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}
	return decodeDocument(accountID, fields, version)
}

func (s *MemoryDocumentStore) SetDocument(_ context.Context, accountID string, fields map[string]any, merge bool) error {
	enc, err := encodeFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc(accountID)
	if !merge {
		doc.fields = make(map[string]string, len(enc))
	}
	for k, v := range enc {
		doc.fields[k] = v
	}
	s.bumpLocked(accountID, doc)
	return nil
}

func (s *MemoryDocumentStore) DeleteFields(_ context.Context, accountID string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc(accountID)
	for _, f := range fields {
		delete(doc.fields, f)
	}
	s.bumpLocked(accountID, doc)
	return nil
}

func (s *MemoryDocumentStore) doc(accountID string) *memDoc {
	doc, ok := s.docs[accountID]
	if !ok {
		doc = &memDoc{fields: make(map[string]string)}
		s.docs[accountID] = doc
	}
	return doc
}

// bumpLocked 调用方持有 s.mu
func (s *MemoryDocumentStore) bumpLocked(accountID string, doc *memDoc) {
	doc.version++
	for _, ch := range s.subs[accountID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *MemoryDocumentStore) Subscribe(ctx context.Context, accountID string) (<-chan *model.AccountSecurityState, error) {
	notify := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[accountID] == nil {
		s.subs[accountID] = make(map[int]chan struct{})
	}
	s.subs[accountID][id] = notify
	s.mu.Unlock()

	out := make(chan *model.AccountSecurityState, 1)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs[accountID], id)
			if len(s.subs[accountID]) == 0 {
				delete(s.subs, accountID)
			}
			s.mu.Unlock()
		}()

		feed := newSnapshotFeed(accountID, out, s.GetDocument)
		if !feed.emit(ctx) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
				if !feed.emit(ctx) {
					return
				}
			}
		}
	}()
	return out, nil
}
