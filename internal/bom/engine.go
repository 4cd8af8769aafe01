package bom

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Source is the read-only view of items and edges the engine walks.
type Source interface {
	Item(ctx context.Context, id int64) (Item, error)
	ChildEdges(ctx context.Context, parentID int64, includeInactive bool) ([]Edge, error)
}

// Options tunes a traversal.
type Options struct {
	// StartLevel is the level of the traversal root; its children sit at
	// StartLevel+1.
	StartLevel int
	// MaxLevel stops expansion once a node reaches it. Non-positive values
	// fall back to MaxTraversalDepth.
	MaxLevel int
	// StartMultiplier seeds the cumulative quantity chain. Zero means 1.
	StartMultiplier float64
	// IncludeInactive traverses soft-deleted edges as well.
	IncludeInactive bool
}

func (o Options) normalized() Options {
	if o.MaxLevel <= 0 {
		o.MaxLevel = MaxTraversalDepth
	}
	if o.StartMultiplier == 0 {
		o.StartMultiplier = 1
	}
	return o
}

// Step is one pre-order emission of the traversal: the node built for an
// edge together with the edge itself.
type Step struct {
	Node Node
	Edge Edge
}

// Stream is the ordered output of a single traversal.
type Stream struct {
	Root     Item
	Steps    []Step
	Warnings []CycleWarning
}

// Nodes returns the flat pre-order node list of the stream.
func (s Stream) Nodes() []Node {
	nodes := make([]Node, len(s.Steps))
	for i, step := range s.Steps {
		nodes[i] = step.Node
	}
	return nodes
}

// ancestry is the path from the traversal root to the current parent. It is
// never mutated; with returns a fresh copy.
type ancestry struct {
	ids   []int64
	names []string
}

func (a ancestry) contains(id int64) bool {
	return slices.Contains(a.ids, id)
}

func (a ancestry) with(id int64, name string) ancestry {
	return ancestry{
		ids:   append(slices.Clip(a.ids), id),
		names: append(slices.Clip(a.names), name),
	}
}

func (a ancestry) breadcrumb(name string) string {
	return strings.Join(append(slices.Clip(a.names), name), PathSeparator)
}

// Traverse walks the BOM below root depth first and returns the pre-order
// node stream. Any repository failure aborts the walk and discards what was
// collected.
func Traverse(ctx context.Context, src Source, root Item, opts Options) (Stream, error) {
	opts = opts.normalized()
	w := &walker{src: src, opts: opts}
	if opts.StartLevel >= opts.MaxLevel {
		return Stream{Root: root}, nil
	}
	start := ancestry{}.with(root.ID, root.Name)
	if err := w.walk(ctx, start, opts.StartLevel, opts.StartMultiplier); err != nil {
		return Stream{}, err
	}
	return Stream{Root: root, Steps: w.steps, Warnings: w.warnings}, nil
}

type walker struct {
	src      Source
	opts     Options
	steps    []Step
	warnings []CycleWarning
}

func (w *walker) walk(ctx context.Context, path ancestry, level int, multiplier float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parentID := path.ids[len(path.ids)-1]
	edges, err := w.src.ChildEdges(ctx, parentID, w.opts.IncludeInactive)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: children of item %d: %w", ErrRepository, parentID, err)
	}
	edges = sortedEdges(edges)

	childLevel := level + 1
	for _, edge := range edges {
		if !edge.IsActive && !w.opts.IncludeInactive {
			continue
		}
		cumulative := multiplier * edge.QuantityRequired
		node := buildNode(edge, childLevel, cumulative, path.breadcrumb(edge.Item.Name))
		if !finite(node.CumulativeQuantity) || !finite(node.ComponentCost) {
			return fmt.Errorf("%w: 품목 %d (레벨 %d)", ErrCostOverflow, edge.ChildItemID, childLevel)
		}

		if path.contains(edge.ChildItemID) {
			node.IsCycle = true
			w.steps = append(w.steps, Step{Node: node, Edge: edge})
			w.warnings = append(w.warnings, CycleWarning{
				ParentItemID: parentID,
				ItemID:       edge.ChildItemID,
				Path:         append(slices.Clip(path.ids), edge.ChildItemID),
				Breadcrumb:   node.Path,
			})
			continue
		}

		w.steps = append(w.steps, Step{Node: node, Edge: edge})
		if childLevel >= w.opts.MaxLevel {
			continue
		}
		if err := w.walk(ctx, path.with(edge.ChildItemID, edge.Item.Name), childLevel, cumulative); err != nil {
			return err
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

func buildNode(edge Edge, level int, cumulative float64, path string) Node {
	price := edge.Item.Price()
	cost := price * cumulative
	return Node{
		BOMID:              edge.ID,
		ParentItemID:       edge.ParentItemID,
		ItemID:             edge.ChildItemID,
		ItemCode:           edge.Item.Code,
		ItemName:           edge.Item.Name,
		Spec:               edge.Item.Spec,
		Unit:               edge.Item.Unit,
		Level:              level,
		QuantityRequired:   edge.QuantityRequired,
		CumulativeQuantity: cumulative,
		UnitPrice:          price,
		ComponentCost:      cost,
		NetCost:            cost,
		Path:               path,
	}
}

// sortedEdges orders siblings by child item id, then edge id, without
// touching the caller's slice.
func sortedEdges(edges []Edge) []Edge {
	out := slices.Clone(edges)
	slices.SortStableFunc(out, func(a, b Edge) int {
		if c := cmp.Compare(a.ChildItemID, b.ChildItemID); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func rootNode(root Item) Node {
	price := root.Price()
	return Node{
		ItemID:             root.ID,
		ItemCode:           root.Code,
		ItemName:           root.Name,
		Spec:               root.Spec,
		Unit:               root.Unit,
		Level:              0,
		QuantityRequired:   1,
		CumulativeQuantity: 1,
		UnitPrice:          price,
		ComponentCost:      price,
		NetCost:            price,
		Path:               root.Name,
	}
}

// Nest rebuilds the forest encoded by a pre-order node list.
func Nest(flat []Node) []Node {
	if len(flat) == 0 {
		return []Node{}
	}
	forest, _ := nestAt(flat, 0, flat[0].Level)
	return forest
}

func nestAt(flat []Node, i, level int) ([]Node, int) {
	out := []Node{}
	for i < len(flat) && flat[i].Level == level {
		node := flat[i]
		node.Children = nil
		i++
		if i < len(flat) && flat[i].Level > level {
			node.Children, i = nestAt(flat, i, level+1)
		}
		out = append(out, node)
	}
	return out, i
}

// Flatten lists a forest in pre-order, dropping the children of each node.
func Flatten(forest []Node) []Node {
	out := []Node{}
	var visit func(nodes []Node)
	visit = func(nodes []Node) {
		for _, node := range nodes {
			children := node.Children
			node.Children = nil
			out = append(out, node)
			visit(children)
		}
	}
	visit(forest)
	return out
}

// Summarize groups flat nodes by level. Empty levels are omitted.
func Summarize(flat []Node) []LevelSummary {
	byLevel := make(map[int]*LevelSummary)
	for _, node := range flat {
		sum, ok := byLevel[node.Level]
		if !ok {
			sum = &LevelSummary{Level: node.Level}
			byLevel[node.Level] = sum
		}
		sum.ItemCount++
		sum.TotalQuantity += node.CumulativeQuantity
		sum.LevelCost += node.ComponentCost
	}
	out := make([]LevelSummary, 0, len(byLevel))
	for _, sum := range byLevel {
		out = append(out, *sum)
	}
	slices.SortFunc(out, func(a, b LevelSummary) int { return cmp.Compare(a.Level, b.Level) })
	return out
}

// TotalCost sums the component cost of every flat node.
func TotalCost(flat []Node) float64 {
	var total float64
	for _, node := range flat {
		total += node.ComponentCost
	}
	return total
}

// CheckTotal fails with ErrCostOverflow when a summed cost is not finite.
func CheckTotal(total float64) error {
	if !finite(total) {
		return fmt.Errorf("%w: 원가 합계", ErrCostOverflow)
	}
	return nil
}

// Totals computes the ExplosionReport summary for flat nodes.
func Totals(flat []Node) ExplosionTotals {
	unique := make(map[int64]struct{}, len(flat))
	var totals ExplosionTotals
	for _, node := range flat {
		unique[node.ItemID] = struct{}{}
		totals.TotalCost += node.ComponentCost
		totals.TotalNetCost += node.NetCost
		totals.MaxDepthReached = max(totals.MaxDepthReached, node.Level)
	}
	totals.TotalComponents = len(flat)
	totals.UniqueItems = len(unique)
	totals.RoundedCost = RoundWon(totals.TotalCost)
	totals.FormattedCost = FormatWon(totals.TotalCost)
	return totals
}
