package bom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ServiceConfig groups traversal defaults.
type ServiceConfig struct {
	// DefaultMaxLevel applies when a caller passes no level limit.
	DefaultMaxLevel int
}

// Service exposes the BOM explosion operations over a Repository.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	metrics *Metrics
	cfg     ServiceConfig
}

// NewService builds Service. logger and metrics may be nil.
func NewService(repo Repository, logger *slog.Logger, metrics *Metrics, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultMaxLevel <= 0 {
		cfg.DefaultMaxLevel = 10
	}
	return &Service{repo: repo, logger: logger, metrics: metrics, cfg: cfg}
}

// Explode returns the forest of rootID's components down to maxLevel.
func (s *Service) Explode(ctx context.Context, rootID int64, maxLevel int) (out Explosion, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("explode", start, len(out.Nodes), len(out.Warnings), err) }()

	stream, err := s.traverse(ctx, rootID, Options{MaxLevel: s.level(maxLevel)})
	if err != nil {
		return Explosion{}, err
	}
	return Explosion{Nodes: Nest(stream.Nodes()), Warnings: stream.Warnings}, nil
}

// Tree returns rootID as a level-0 node with its components nested below.
// A missing root yields a nil node and no error.
func (s *Service) Tree(ctx context.Context, rootID int64, includeInactive bool, maxLevel int) (tree *Node, warnings []CycleWarning, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("tree", start, countTree(tree), len(warnings), err) }()

	stream, err := s.traverse(ctx, rootID, Options{MaxLevel: s.level(maxLevel), IncludeInactive: includeInactive})
	if errors.Is(err, ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	node := rootNode(stream.Root)
	node.Children = Nest(stream.Nodes())
	return &node, stream.Warnings, nil
}

// TotalCost rolls up unit price × cumulative quantity over every descendant.
func (s *Service) TotalCost(ctx context.Context, rootID int64) (out CostSummary, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("cost", start, out.NodeCount, 0, err) }()

	stream, err := s.traverse(ctx, rootID, Options{MaxLevel: MaxTraversalDepth})
	if err != nil {
		return CostSummary{}, err
	}
	flat := stream.Nodes()
	total := TotalCost(flat)
	if err := CheckTotal(total); err != nil {
		return CostSummary{}, err
	}
	return CostSummary{
		RootItemID:   rootID,
		TotalCost:    total,
		RoundedTotal: RoundWon(total),
		Formatted:    FormatWon(total),
		NodeCount:    len(flat),
	}, nil
}

// LevelSummary aggregates the full explosion of rootID per level.
func (s *Service) LevelSummary(ctx context.Context, rootID int64) (out []LevelSummary, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("summary", start, len(out), 0, err) }()

	stream, err := s.traverse(ctx, rootID, Options{MaxLevel: MaxTraversalDepth})
	if err != nil {
		return nil, err
	}
	summary := Summarize(stream.Nodes())
	for _, level := range summary {
		if err := CheckTotal(level.LevelCost); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

// WhereUsed lists the immediate parents consuming childID over active lines.
// Only one level is returned.
func (s *Service) WhereUsed(ctx context.Context, childID int64) (out []WhereUsedEntry, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("where-used", start, len(out), 0, err) }()

	if _, err := s.item(ctx, childID); err != nil {
		return nil, err
	}
	edges, err := s.repo.ParentEdges(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("%w: parents of item %d: %w", ErrRepository, childID, err)
	}
	out = make([]WhereUsedEntry, 0, len(edges))
	for _, edge := range edges {
		out = append(out, WhereUsedEntry{
			BOMID:            edge.ID,
			ParentItemID:     edge.ParentItemID,
			ParentItemCode:   edge.Item.Code,
			ParentItemName:   edge.Item.Name,
			Spec:             edge.Item.Spec,
			Unit:             edge.Item.Unit,
			QuantityRequired: edge.QuantityRequired,
			LevelNo:          edge.LevelNo,
		})
	}
	return out, nil
}

// Validate walks the full BOM of rootID and reports structural issues.
// Cycles are issues here, not warnings.
func (s *Service) Validate(ctx context.Context, rootID int64) (ValidationResult, error) {
	out, _, err := s.validate(ctx, rootID)
	return out, err
}

// validate also returns every item id the walk reached, rootID included.
func (s *Service) validate(ctx context.Context, rootID int64) (out ValidationResult, reached []int64, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("validate", start, len(out.Issues), 0, err) }()

	stream, err := s.traverse(ctx, rootID, Options{MaxLevel: MaxTraversalDepth})
	if err != nil {
		return ValidationResult{}, nil, err
	}
	reached = make([]int64, 0, len(stream.Steps)+1)
	reached = append(reached, rootID)
	for _, step := range stream.Steps {
		reached = append(reached, step.Node.ItemID)
	}
	return Inspect(stream), reached, nil
}

// ExplosionReport returns the flat explosion of rootID with breadcrumbs and
// net cost per node plus totals.
func (s *Service) ExplosionReport(ctx context.Context, rootID int64, maxDepth int) (out ExplosionReport, err error) {
	start := time.Now()
	defer func() { s.metrics.observe("explosion", start, len(out.Explosion), len(out.Warnings), err) }()

	stream, err := s.traverse(ctx, rootID, Options{MaxLevel: s.level(maxDepth)})
	if err != nil {
		return ExplosionReport{}, err
	}
	flat := stream.Nodes()
	totals := Totals(flat)
	if err := CheckTotal(totals.TotalCost); err != nil {
		return ExplosionReport{}, err
	}
	return ExplosionReport{
		ParentItem: viewOf(stream.Root),
		Explosion:  flat,
		Warnings:   stream.Warnings,
		Summary:    totals,
	}, nil
}

func (s *Service) traverse(ctx context.Context, rootID int64, opts Options) (Stream, error) {
	root, err := s.item(ctx, rootID)
	if err != nil {
		return Stream{}, err
	}
	stream, err := Traverse(ctx, s.repo, root, opts)
	if err != nil {
		s.logger.Error("bom traversal failed", slog.Int64("root_item_id", rootID), slog.Any("error", err))
		return Stream{}, err
	}
	for _, w := range stream.Warnings {
		s.logger.Warn("bom cycle detected",
			slog.Int64("root_item_id", rootID),
			slog.Int64("parent_item_id", w.ParentItemID),
			slog.Int64("item_id", w.ItemID),
			slog.String("path", w.Breadcrumb),
		)
	}
	return stream, nil
}

func (s *Service) item(ctx context.Context, id int64) (Item, error) {
	item, err := s.repo.Item(ctx, id)
	if err == nil {
		return item, nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Item{}, err
	}
	return Item{}, fmt.Errorf("%w: item %d: %w", ErrRepository, id, err)
}

func (s *Service) level(requested int) int {
	if requested <= 0 {
		return s.cfg.DefaultMaxLevel
	}
	return requested
}

func countTree(node *Node) int {
	if node == nil {
		return 0
	}
	return len(Flatten(node.Children))
}
