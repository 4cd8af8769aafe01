package bom

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// Line describes a BOM row loaded into a MemoryRepository.
type Line struct {
	ParentItemID     int64
	ChildItemID      int64
	QuantityRequired float64
	LevelNo          int
	Inactive         bool
}

// MemoryRepository is an in-process Repository backed by maps.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[int64]Item
	edges  []Edge
	nextID int64
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[int64]Item)}
}

// AddItem registers or replaces an item.
func (r *MemoryRepository) AddItem(item Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
}

// AddLine appends a BOM row and returns its generated id.
func (r *MemoryRepository) AddLine(line Line) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.edges = append(r.edges, Edge{
		ID:               r.nextID,
		ParentItemID:     line.ParentItemID,
		ChildItemID:      line.ChildItemID,
		QuantityRequired: line.QuantityRequired,
		LevelNo:          line.LevelNo,
		IsActive:         !line.Inactive,
	})
	return r.nextID
}

// Item implements Source.
func (r *MemoryRepository) Item(_ context.Context, id int64) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	return item, nil
}

// ChildEdges implements Source.
func (r *MemoryRepository) ChildEdges(_ context.Context, parentID int64, includeInactive bool) ([]Edge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Edge
	for _, edge := range r.edges {
		if edge.ParentItemID != parentID || (!edge.IsActive && !includeInactive) {
			continue
		}
		out = append(out, r.withItem(edge, edge.ChildItemID))
	}
	return sortedEdges(out), nil
}

// ParentEdges implements Repository.
func (r *MemoryRepository) ParentEdges(_ context.Context, childID int64) ([]Edge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Edge
	for _, edge := range r.edges {
		if edge.ChildItemID != childID || !edge.IsActive {
			continue
		}
		out = append(out, r.withItem(edge, edge.ParentItemID))
	}
	slices.SortStableFunc(out, func(a, b Edge) int {
		if c := cmp.Compare(a.ParentItemID, b.ParentItemID); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// RootItems implements Repository.
func (r *MemoryRepository) RootItems(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	parents := make(map[int64]struct{})
	children := make(map[int64]struct{})
	for _, edge := range r.edges {
		if !edge.IsActive {
			continue
		}
		parents[edge.ParentItemID] = struct{}{}
		children[edge.ChildItemID] = struct{}{}
	}
	var roots []int64
	for id := range parents {
		if _, consumed := children[id]; !consumed {
			roots = append(roots, id)
		}
	}
	slices.Sort(roots)
	return roots, nil
}

// AssemblyItems implements Repository.
func (r *MemoryRepository) AssemblyItems(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []int64
	for _, edge := range r.edges {
		if edge.IsActive && !slices.Contains(ids, edge.ParentItemID) {
			ids = append(ids, edge.ParentItemID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *MemoryRepository) withItem(edge Edge, itemID int64) Edge {
	item, ok := r.items[itemID]
	edge.Item = item
	edge.ItemMissing = !ok
	return edge
}
