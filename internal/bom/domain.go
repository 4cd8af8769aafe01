// Package bom expands multi-level bills of materials into exploded lists,
// nested trees, cost rollups and structural validation reports.
package bom

import (
	"errors"
	"fmt"
)

// MaxTraversalDepth bounds whole-tree operations (cost, summary, validation)
// that do not take a caller supplied level limit.
const MaxTraversalDepth = 100

// PathSeparator joins item names in a node breadcrumb.
const PathSeparator = " > "

var (
	// ErrNotFound indicates the requested item does not exist.
	ErrNotFound = errors.New("bom: item not found")
	// ErrValidation indicates invalid input parameters.
	ErrValidation = errors.New("bom: validation failed")
	// ErrRepository wraps failures of the underlying item/BOM data source.
	ErrRepository = errors.New("bom: repository failure")
	// ErrCostOverflow indicates a cumulative quantity or cost left the float64
	// range.
	ErrCostOverflow = fmt.Errorf("%w: 수량 또는 원가가 계산 범위를 벗어났습니다", ErrValidation)
)

// Item is the read-only master record of a part.
type Item struct {
	ID        int64
	Code      string
	Name      string
	Spec      string
	Unit      string
	UnitPrice *float64
	IsActive  bool
}

// Price returns the unit price, treating a missing price as zero.
func (i Item) Price() float64 {
	if i.UnitPrice == nil {
		return 0
	}
	return *i.UnitPrice
}

// Edge is one parent→child row of the bom relation joined with a snapshot of
// the item on the far side of the edge.
type Edge struct {
	ID               int64
	ParentItemID     int64
	ChildItemID      int64
	QuantityRequired float64
	LevelNo          int
	IsActive         bool
	// Item is the child snapshot for ChildEdges and the parent snapshot for
	// ParentEdges. ItemMissing is set when no items row matched.
	Item        Item
	ItemMissing bool
}

// Node is one occurrence of a component at a position in the explosion.
type Node struct {
	BOMID              int64   `json:"bom_id,omitempty"`
	ParentItemID       int64   `json:"parent_item_id,omitempty"`
	ItemID             int64   `json:"item_id"`
	ItemCode           string  `json:"item_code"`
	ItemName           string  `json:"item_name"`
	Spec               string  `json:"spec"`
	Unit               string  `json:"unit"`
	Level              int     `json:"level"`
	QuantityRequired   float64 `json:"quantity_required"`
	CumulativeQuantity float64 `json:"cumulative_quantity"`
	UnitPrice          float64 `json:"unit_price"`
	ComponentCost      float64 `json:"component_cost"`
	// NetCost is reserved for scrap/byproduct offsets and currently mirrors
	// ComponentCost.
	NetCost  float64 `json:"net_cost"`
	Path     string  `json:"path"`
	IsCycle  bool    `json:"is_cycle,omitempty"`
	Children []Node  `json:"children,omitempty"`
}

// CycleWarning reports an edge pointing back at an item already on the
// active ancestor path.
type CycleWarning struct {
	ParentItemID int64   `json:"parent_item_id"`
	ItemID       int64   `json:"item_id"`
	Path         []int64 `json:"path"`
	Breadcrumb   string  `json:"breadcrumb"`
}

// Explosion is the forest of a root's components plus any cycle warnings
// raised while building it.
type Explosion struct {
	Nodes    []Node         `json:"nodes"`
	Warnings []CycleWarning `json:"warnings,omitempty"`
}

// LevelSummary aggregates exploded nodes sharing a level.
type LevelSummary struct {
	Level         int     `json:"level"`
	ItemCount     int     `json:"item_count"`
	TotalQuantity float64 `json:"total_quantity"`
	LevelCost     float64 `json:"level_cost"`
}

// WhereUsedEntry is one immediate parent consuming a component.
type WhereUsedEntry struct {
	BOMID            int64   `json:"bom_id"`
	ParentItemID     int64   `json:"parent_item_id"`
	ParentItemCode   string  `json:"parent_item_code"`
	ParentItemName   string  `json:"parent_item_name"`
	Spec             string  `json:"spec"`
	Unit             string  `json:"unit"`
	QuantityRequired float64 `json:"quantity_required"`
	LevelNo          int     `json:"level_no"`
}

// ValidationResult lists structural problems found under a root item.
type ValidationResult struct {
	RootItemID int64    `json:"root_item_id"`
	IsValid    bool     `json:"is_valid"`
	Issues     []string `json:"issues"`
}

// CostSummary carries the raw rollup and its display forms.
type CostSummary struct {
	RootItemID   int64   `json:"root_item_id"`
	TotalCost    float64 `json:"total_cost"`
	RoundedTotal int64   `json:"rounded_total"`
	Formatted    string  `json:"formatted"`
	NodeCount    int     `json:"node_count"`
}

// ExplosionReport is the detailed per-node explosion of one parent item.
type ExplosionReport struct {
	ParentItem ItemView        `json:"parent_item"`
	Explosion  []Node          `json:"explosion"`
	Warnings   []CycleWarning  `json:"warnings,omitempty"`
	Summary    ExplosionTotals `json:"summary"`
}

// ItemView is the JSON projection of Item.
type ItemView struct {
	ItemID    int64    `json:"item_id"`
	ItemCode  string   `json:"item_code"`
	ItemName  string   `json:"item_name"`
	Spec      string   `json:"spec"`
	Unit      string   `json:"unit"`
	UnitPrice *float64 `json:"unit_price"`
	IsActive  bool     `json:"is_active"`
}

// ExplosionTotals summarises an ExplosionReport.
type ExplosionTotals struct {
	TotalComponents int     `json:"total_components"`
	UniqueItems     int     `json:"unique_items"`
	MaxDepthReached int     `json:"max_depth_reached"`
	TotalCost       float64 `json:"total_cost"`
	TotalNetCost    float64 `json:"total_net_cost"`
	RoundedCost     int64   `json:"rounded_cost"`
	FormattedCost   string  `json:"formatted_cost"`
}

func viewOf(item Item) ItemView {
	return ItemView{
		ItemID:    item.ID,
		ItemCode:  item.Code,
		ItemName:  item.Name,
		Spec:      item.Spec,
		Unit:      item.Unit,
		UnitPrice: item.UnitPrice,
		IsActive:  item.IsActive,
	}
}
