package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/crewflow/artifacts"
)

// memoryStore is a minimal workflow.ArtifactStore for runner tests.
type memoryStore struct {
	mu    sync.Mutex
	items []*artifacts.Artifact
}

func (s *memoryStore) Store(_ context.Context, artifactType, name string, content any, _ ...artifacts.CreateOption) (*artifacts.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &artifacts.Artifact{ID: fmt.Sprintf("%s-%d", name, len(s.items)+1), Type: artifactType, Name: name, Content: content}
	s.items = append(s.items, a)
	return a, nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*artifacts.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.items {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, artifacts.ErrNotFound
}

func (s *memoryStore) Latest(context.Context, string) (*artifacts.Artifact, bool) {
	return nil, false
}
