package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

var productColumns = []string{
	"id", "name", "description", "category", "image", "price", "stock", "is_active", "created_at", "updated_at",
}

type productRepository struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB(), qb: store.qb}
}

func (r *productRepository) Create(ctx context.Context, p domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Insert("products").
		Columns(productColumns...).
		Values(p.ID, p.Name, p.Description, p.Category, p.Image, p.Price, p.Stock, p.IsActive, p.CreatedAt, p.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert product: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidationError("id", "product already exists")
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Select(productColumns...).From("products").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build select product: %w", err)
	}

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *productRepository) GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Select(productColumns...).From("products").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select products: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

// Update не пишет stock: остаток меняется только через SetStock и атомарные операции склада.
func (r *productRepository) Update(ctx context.Context, p domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Update("products").
		SetMap(map[string]any{
			"name":        p.Name,
			"description": p.Description,
			"category":    p.Category,
			"image":       p.Image,
			"price":       p.Price,
			"is_active":   p.IsActive,
			"updated_at":  p.UpdatedAt,
		}).
		Where(sq.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update product: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *productRepository) SetStock(ctx context.Context, id string, stock int64, at time.Time) error {
	if stock < 0 {
		return domain.NewValidationError("stock", "must not be negative")
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Update("products").
		Set("stock", stock).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set stock: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r *productRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Update("products").
		Set("is_active", false).
		Set("updated_at", sq.Expr("CASE WHEN is_active THEN ?::timestamptz ELSE updated_at END", at)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate product: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

// DecrementStock выполняет проверку и списание одним UPDATE.
func (r *productRepository) DecrementStock(ctx context.Context, id string, qty int64) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrStockQuantityInvalid
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Update("products").
		Set("stock", sq.Expr("stock - ?", qty)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "is_active": true}).
		Where(sq.GtOrEq{"stock": qty}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build decrement stock: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *productRepository) IncrementStock(ctx context.Context, id string, qty int64) error {
	if qty <= 0 {
		return domain.ErrStockQuantityInvalid
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Update("products").
		Set("stock", sq.Expr("stock + ?", qty)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build increment stock: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Image, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
