package bom

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repository is the item/BOM data the service reads.
type Repository interface {
	Source
	ParentEdges(ctx context.Context, childID int64) ([]Edge, error)
	// RootItems lists items that own active BOM lines but are not consumed by
	// any active line themselves.
	RootItems(ctx context.Context) ([]int64, error)
	// AssemblyItems lists every item that owns at least one active BOM line.
	AssemblyItems(ctx context.Context) ([]int64, error)
}

// DB is the subset of pgxpool.Pool used by PostgresRepository.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads the items and bom tables.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository constructs PostgresRepository.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const itemColumns = `i.item_id, i.item_code, i.item_name, i.spec, i.unit, i.price, i.is_active`

// Item loads one item by id.
func (r *PostgresRepository) Item(ctx context.Context, id int64) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items i WHERE i.item_id = $1`
	var (
		item       Item
		spec, unit *string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&item.ID, &item.Code, &item.Name, &spec, &unit, &item.UnitPrice, &item.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, fmt.Errorf("%w: item %d", ErrNotFound, id)
		}
		return Item{}, err
	}
	item.Spec = deref(spec)
	item.Unit = deref(unit)
	return item, nil
}

// ChildEdges lists the BOM lines below parentID joined with the child item.
func (r *PostgresRepository) ChildEdges(ctx context.Context, parentID int64, includeInactive bool) ([]Edge, error) {
	query := `SELECT b.bom_id, b.parent_item_id, b.child_item_id, b.quantity_required, COALESCE(b.level_no, 0), b.is_active, ` + itemColumns + `
FROM bom b
LEFT JOIN items i ON i.item_id = b.child_item_id
WHERE b.parent_item_id = $1 AND ($2 OR b.is_active)
ORDER BY b.child_item_id, b.bom_id`
	return r.queryEdges(ctx, query, parentID, includeInactive)
}

// ParentEdges lists the active BOM lines consuming childID joined with the
// parent item.
func (r *PostgresRepository) ParentEdges(ctx context.Context, childID int64) ([]Edge, error) {
	query := `SELECT b.bom_id, b.parent_item_id, b.child_item_id, b.quantity_required, COALESCE(b.level_no, 0), b.is_active, ` + itemColumns + `
FROM bom b
LEFT JOIN items i ON i.item_id = b.parent_item_id
WHERE b.child_item_id = $1 AND b.is_active
ORDER BY b.parent_item_id, b.bom_id`
	return r.queryEdges(ctx, query, childID, nil)
}

// RootItems lists top-level assemblies.
func (r *PostgresRepository) RootItems(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT b.parent_item_id
FROM bom b
WHERE b.is_active
  AND NOT EXISTS (SELECT 1 FROM bom c WHERE c.child_item_id = b.parent_item_id AND c.is_active)
ORDER BY b.parent_item_id`
	return r.queryIDs(ctx, query)
}

// AssemblyItems lists every parent of an active BOM line, consumed or not.
func (r *PostgresRepository) AssemblyItems(ctx context.Context) ([]int64, error) {
	return r.queryIDs(ctx, `SELECT DISTINCT parent_item_id FROM bom WHERE is_active ORDER BY parent_item_id`)
}

func (r *PostgresRepository) queryIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) queryEdges(ctx context.Context, query string, id int64, includeInactive any) ([]Edge, error) {
	args := []any{id}
	if includeInactive != nil {
		args = append(args, includeInactive)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var (
			edge       Edge
			itemID     *int64
			code, name *string
			spec, unit *string
			price      *float64
			itemActive *bool
		)
		if err := rows.Scan(
			&edge.ID, &edge.ParentItemID, &edge.ChildItemID, &edge.QuantityRequired, &edge.LevelNo, &edge.IsActive,
			&itemID, &code, &name, &spec, &unit, &price, &itemActive,
		); err != nil {
			return nil, err
		}
		if itemID == nil {
			edge.ItemMissing = true
		} else {
			edge.Item = Item{
				ID:        *itemID,
				Code:      deref(code),
				Name:      deref(name),
				Spec:      deref(spec),
				Unit:      deref(unit),
				UnitPrice: price,
				IsActive:  itemActive != nil && *itemActive,
			}
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
