package bom

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func price(v float64) *float64 { return &v }

func item(id int64, code string, unitPrice float64) Item {
	return Item{ID: id, Code: code, Name: code, Unit: "EA", UnitPrice: price(unitPrice), IsActive: true}
}

// exampleRepo holds ASSY-100 → PART-A (×4, ₩1000) → PART-B (×2, ₩50).
func exampleRepo() *MemoryRepository {
	repo := NewMemoryRepository()
	repo.AddItem(item(100, "ASSY-100", 0))
	repo.AddItem(item(1, "PART-A", 1000))
	repo.AddItem(item(2, "PART-B", 50))
	repo.AddLine(Line{ParentItemID: 100, ChildItemID: 1, QuantityRequired: 4, LevelNo: 1})
	repo.AddLine(Line{ParentItemID: 1, ChildItemID: 2, QuantityRequired: 2, LevelNo: 2})
	return repo
}

func traverse(t *testing.T, repo *MemoryRepository, rootID int64, opts Options) Stream {
	t.Helper()
	root, err := repo.Item(context.Background(), rootID)
	require.NoError(t, err)
	stream, err := Traverse(context.Background(), repo, root, opts)
	require.NoError(t, err)
	return stream
}

func itemIDs(nodes []Node) []int64 {
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ItemID
	}
	return ids
}

func TestExampleScenario(t *testing.T) {
	stream := traverse(t, exampleRepo(), 100, Options{MaxLevel: 10})
	forest := Nest(stream.Nodes())

	require.Len(t, forest, 1)
	partA := forest[0]
	require.Equal(t, "PART-A", partA.ItemCode)
	require.Equal(t, 1, partA.Level)
	require.InDelta(t, 4.0, partA.CumulativeQuantity, 1e-9)
	require.InDelta(t, 4000.0, partA.ComponentCost, 1e-9)
	require.Equal(t, "ASSY-100 > PART-A", partA.Path)

	require.Len(t, partA.Children, 1)
	partB := partA.Children[0]
	require.Equal(t, "PART-B", partB.ItemCode)
	require.Equal(t, 2, partB.Level)
	require.InDelta(t, 8.0, partB.CumulativeQuantity, 1e-9)
	require.InDelta(t, 400.0, partB.ComponentCost, 1e-9)
	require.InDelta(t, partB.ComponentCost, partB.NetCost, 1e-9)
	require.Empty(t, partB.Children)

	require.InDelta(t, 4400.0, TotalCost(stream.Nodes()), 1e-9)
}

func TestCumulativeQuantityIsProductAlongPath(t *testing.T) {
	repo := NewMemoryRepository()
	quantities := []float64{2, 3, 5, 7}
	for id := int64(1); id <= 5; id++ {
		repo.AddItem(item(id, "L", 1))
	}
	for i, q := range quantities {
		repo.AddLine(Line{ParentItemID: int64(i + 1), ChildItemID: int64(i + 2), QuantityRequired: q})
	}

	nodes := traverse(t, repo, 1, Options{MaxLevel: 20}).Nodes()
	require.Len(t, nodes, 4)
	leaf := nodes[3]
	require.Equal(t, 4, leaf.Level)
	require.Equal(t, int64(5), leaf.ItemID)
	require.InDelta(t, 210.0, leaf.CumulativeQuantity, 1e-9)
	require.InDelta(t, 7.0, leaf.QuantityRequired, 1e-9)
}

func TestStartMultiplierSeedsChain(t *testing.T) {
	nodes := traverse(t, exampleRepo(), 100, Options{MaxLevel: 10, StartMultiplier: 3}).Nodes()
	require.InDelta(t, 12.0, nodes[0].CumulativeQuantity, 1e-9)
	require.InDelta(t, 24.0, nodes[1].CumulativeQuantity, 1e-9)
}

func TestPureCycleTerminates(t *testing.T) {
	repo := NewMemoryRepository()
	repo.AddItem(item(1, "A", 1))
	repo.AddItem(item(2, "B", 1))
	repo.AddItem(item(3, "C", 1))
	repo.AddLine(Line{ParentItemID: 1, ChildItemID: 2, QuantityRequired: 1})
	repo.AddLine(Line{ParentItemID: 2, ChildItemID: 3, QuantityRequired: 1})
	repo.AddLine(Line{ParentItemID: 3, ChildItemID: 1, QuantityRequired: 1})

	stream := traverse(t, repo, 1, Options{MaxLevel: 1000})
	nodes := stream.Nodes()
	require.Equal(t, []int64{2, 3, 1}, itemIDs(nodes))
	require.False(t, nodes[0].IsCycle)
	require.False(t, nodes[1].IsCycle)
	require.True(t, nodes[2].IsCycle)

	require.Len(t, stream.Warnings, 1)
	w := stream.Warnings[0]
	require.Equal(t, int64(3), w.ParentItemID)
	require.Equal(t, int64(1), w.ItemID)
	require.Equal(t, []int64{1, 2, 3, 1}, w.Path)
	require.Equal(t, "A > B > C > A", w.Breadcrumb)
}

func TestDiamondIsNotACycle(t *testing.T) {
	repo := NewMemoryRepository()
	for _, id := range []int64{1, 2, 3, 4} {
		repo.AddItem(item(id, string(rune('A'+id-1)), 10))
	}
	repo.AddLine(Line{ParentItemID: 1, ChildItemID: 2, QuantityRequired: 2})
	repo.AddLine(Line{ParentItemID: 1, ChildItemID: 3, QuantityRequired: 3})
	repo.AddLine(Line{ParentItemID: 2, ChildItemID: 4, QuantityRequired: 5})
	repo.AddLine(Line{ParentItemID: 3, ChildItemID: 4, QuantityRequired: 7})

	stream := traverse(t, repo, 1, Options{MaxLevel: 10})
	require.Empty(t, stream.Warnings)

	nodes := stream.Nodes()
	require.Equal(t, []int64{2, 4, 3, 4}, itemIDs(nodes))
	require.InDelta(t, 10.0, nodes[1].CumulativeQuantity, 1e-9)
	require.InDelta(t, 21.0, nodes[3].CumulativeQuantity, 1e-9)
	require.Equal(t, "A > B > D", nodes[1].Path)
	require.Equal(t, "A > C > D", nodes[3].Path)
	for _, n := range nodes {
		require.False(t, n.IsCycle)
	}
}

func TestMaxLevelBoundsDepth(t *testing.T) {
	repo := NewMemoryRepository()
	for id := int64(1); id <= 8; id++ {
		repo.AddItem(item(id, "L", 1))
		if id > 1 {
			repo.AddLine(Line{ParentItemID: id - 1, ChildItemID: id, QuantityRequired: 1})
		}
	}

	nodes := traverse(t, repo, 1, Options{MaxLevel: 3}).Nodes()
	require.Len(t, nodes, 3)
	for _, n := range nodes {
		require.LessOrEqual(t, n.Level, 3)
	}

	nodes = traverse(t, repo, 1, Options{MaxLevel: 1}).Nodes()
	require.Equal(t, []int64{2}, itemIDs(nodes))
}

func TestSiblingsVisitedByAscendingChildID(t *testing.T) {
	repo := NewMemoryRepository()
	for _, id := range []int64{1, 5, 7, 9} {
		repo.AddItem(item(id, "P", 1))
	}
	repo.AddLine(Line{ParentItemID: 1, ChildItemID: 9, QuantityRequired: 1})
	repo.AddLine(Line{ParentItemID: 1, ChildItemID: 5, QuantityRequired: 1})
	repo.AddLine(Line{ParentItemID: 1, ChildItemID: 7, QuantityRequired: 1})

	nodes := traverse(t, repo, 1, Options{MaxLevel: 5}).Nodes()
	require.Equal(t, []int64{5, 7, 9}, itemIDs(nodes))
}

func TestFlattenMatchesManualPreOrder(t *testing.T) {
	forest := []Node{
		{ItemID: 1, Level: 1, Children: []Node{
			{ItemID: 2, Level: 2, Children: []Node{{ItemID: 3, Level: 3}}},
			{ItemID: 4, Level: 2},
		}},
		{ItemID: 5, Level: 1, Children: []Node{{ItemID: 6, Level: 2}}},
	}

	var manual []int64
	var dfs func([]Node)
	dfs = func(nodes []Node) {
		for _, n := range nodes {
			manual = append(manual, n.ItemID)
			dfs(n.Children)
		}
	}
	dfs(forest)

	flat := Flatten(forest)
	require.Equal(t, manual, itemIDs(flat))
	for _, n := range flat {
		require.Nil(t, n.Children)
	}
	require.Len(t, forest[0].Children, 2, "flatten must not mutate its input")

	require.Equal(t, forest, Nest(flat))
}

func TestInactiveEdgesExcludedUnlessRequested(t *testing.T) {
	repo := exampleRepo()
	repo.AddItem(item(3, "PART-C", 10))
	repo.AddLine(Line{ParentItemID: 100, ChildItemID: 3, QuantityRequired: 1, Inactive: true})

	nodes := traverse(t, repo, 100, Options{MaxLevel: 10}).Nodes()
	require.NotContains(t, itemIDs(nodes), int64(3))

	nodes = traverse(t, repo, 100, Options{MaxLevel: 10, IncludeInactive: true}).Nodes()
	require.Equal(t, []int64{1, 2, 3}, itemIDs(nodes))
}

func TestSummarizeGroupsByLevel(t *testing.T) {
	flat := []Node{
		{Level: 1, CumulativeQuantity: 4, ComponentCost: 4000},
		{Level: 2, CumulativeQuantity: 8, ComponentCost: 400},
		{Level: 1, CumulativeQuantity: 1, ComponentCost: 10},
		{Level: 4, CumulativeQuantity: 2, ComponentCost: 2},
	}
	summary := Summarize(flat)
	require.Equal(t, []LevelSummary{
		{Level: 1, ItemCount: 2, TotalQuantity: 5, LevelCost: 4010},
		{Level: 2, ItemCount: 1, TotalQuantity: 8, LevelCost: 400},
		{Level: 4, ItemCount: 1, TotalQuantity: 2, LevelCost: 2},
	}, summary)
}

type failingSource struct {
	*MemoryRepository
	failOn int64
}

func (f failingSource) ChildEdges(ctx context.Context, parentID int64, includeInactive bool) ([]Edge, error) {
	if parentID == f.failOn {
		return nil, errors.New("connection reset")
	}
	return f.MemoryRepository.ChildEdges(ctx, parentID, includeInactive)
}

func TestRepositoryFailureAbortsTraversal(t *testing.T) {
	repo := exampleRepo()
	root, _ := repo.Item(context.Background(), 100)

	stream, err := Traverse(context.Background(), failingSource{MemoryRepository: repo, failOn: 1}, root, Options{MaxLevel: 10})
	require.ErrorIs(t, err, ErrRepository)
	require.ErrorContains(t, err, "connection reset")
	require.Empty(t, stream.Steps)
}

func TestCancelledContextStopsTraversal(t *testing.T) {
	repo := exampleRepo()
	root, _ := repo.Item(context.Background(), 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Traverse(ctx, repo, root, Options{MaxLevel: 10})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMoneyFormatting(t *testing.T) {
	require.Equal(t, int64(4400), RoundWon(4400.4))
	require.Equal(t, int64(4401), RoundWon(4400.5))
	require.Equal(t, "₩4,400", FormatWon(4400))
	require.Equal(t, "₩1,234,567", FormatWon(1234566.9))
}

func TestStartLevelAtMaxLevelEmitsNothing(t *testing.T) {
	repo := exampleRepo()

	stream := traverse(t, repo, 100, Options{StartLevel: 3, MaxLevel: 2})
	require.Empty(t, stream.Steps)
	require.Equal(t, int64(100), stream.Root.ID)

	stream = traverse(t, repo, 100, Options{StartLevel: 2, MaxLevel: 2})
	require.Empty(t, stream.Steps)

	nodes := traverse(t, repo, 100, Options{StartLevel: 1, MaxLevel: 2}).Nodes()
	require.Equal(t, []int64{1}, itemIDs(nodes))
	require.Equal(t, 2, nodes[0].Level)
}

func TestOverflowingNodeCostFails(t *testing.T) {
	repo := NewMemoryRepository()
	repo.AddItem(item(1, "ROOT", 0))
	repo.AddItem(item(2, "HEAVY", 1e300))
	repo.AddLine(Line{ParentItemID: 1, ChildItemID: 2, QuantityRequired: 1e300})
	root, err := repo.Item(context.Background(), 1)
	require.NoError(t, err)

	stream, err := Traverse(context.Background(), repo, root, Options{MaxLevel: MaxTraversalDepth})
	require.ErrorIs(t, err, ErrCostOverflow)
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, stream.Steps)
}

func TestCheckTotal(t *testing.T) {
	require.NoError(t, CheckTotal(4400))
	require.ErrorIs(t, CheckTotal(math.Inf(1)), ErrCostOverflow)
	require.ErrorIs(t, CheckTotal(math.NaN()), ErrCostOverflow)
}

func TestRoundWonSaturates(t *testing.T) {
	require.Equal(t, int64(math.MaxInt64), RoundWon(math.Inf(1)))
	require.Equal(t, int64(math.MinInt64), RoundWon(math.Inf(-1)))
	require.Equal(t, int64(math.MaxInt64), RoundWon(1e300))
	require.Equal(t, int64(0), RoundWon(math.NaN()))
	require.NotPanics(t, func() { _ = FormatWon(math.Inf(1)) })
}
