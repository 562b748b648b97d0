package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

var orderColumns = []string{
	"id", "order_number", "user_id", "status",
	"ship_first_name", "ship_last_name", "ship_email", "ship_phone", "ship_address",
	"ship_city", "ship_region", "ship_postal_code", "ship_country",
	"payment_method", "payment_transaction_id", "payment_auth_code", "payment_card_brand",
	"payment_card_last4", "payment_installments", "payment_status", "payment_transaction_at", "payment_amount",
	"subtotal", "shipping_cost", "tax", "total",
	"notes", "tracking_number", "estimated_delivery", "delivered_at", "cancelled_at", "cancel_reason",
	"requires_review", "version", "created_at", "updated_at",
}

type orderRepository struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB(), qb: store.qb}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx, &err)

	query, args, err := r.qb.Insert("orders").Columns(orderColumns...).Values(orderValues(order)...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert order: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			if constraintName(err) == "orders_order_number_key" {
				return domain.ErrOrderNumberConflict
			}
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if len(order.Items) > 0 {
		items := r.qb.Insert("order_items").
			Columns("id", "order_id", "position", "product_id", "name", "unit_price", "quantity", "image", "stock_decremented")
		for i, item := range order.Items {
			items = items.Values(item.ID, order.ID, i, item.ProductID, item.Name, item.UnitPrice, item.Quantity, item.Image, item.StockDecremented)
		}
		query, args, err = items.ToSql()
		if err != nil {
			return fmt.Errorf("build insert order items: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *orderRepository) FindByTransactionID(ctx context.Context, token string) (domain.Order, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.getOne(ctx, sq.Eq{"payment_transaction_id": token})
}

// Save обновляет изменяемые поля заказа. Из позиций меняется только отметка о списании остатка,
// и она только взводится.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Update("orders").
		SetMap(map[string]any{
			"status":                 string(order.Status),
			"payment_transaction_id": nullString(order.Payment.ExternalTransactionID),
			"payment_auth_code":      order.Payment.AuthorizationCode,
			"payment_card_brand":     order.Payment.CardBrand,
			"payment_card_last4":     order.Payment.MaskedCardNumber,
			"payment_installments":   order.Payment.InstallmentCount,
			"payment_status":         string(order.Payment.Status),
			"payment_transaction_at": order.Payment.TransactionAt,
			"notes":                  order.Notes,
			"tracking_number":        order.TrackingNumber,
			"estimated_delivery":     order.EstimatedDelivery,
			"delivered_at":           order.DeliveredAt,
			"cancelled_at":           order.CancelledAt,
			"cancel_reason":          order.CancelReason,
			"requires_review":        order.RequiresReview,
			"version":                sq.Expr("version + 1"),
			"updated_at":             order.UpdatedAt,
		}).
		Where(sq.Eq{"id": order.ID, "version": order.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update order: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx, &err)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction token already bound", domain.ErrOrderVersionConflict)
		}
		return fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	if decremented := decrementedItemIDs(order); len(decremented) > 0 {
		query, args, err = r.qb.Update("order_items").
			Set("stock_decremented", true).
			Where(sq.Eq{"order_id": order.ID, "id": decremented, "stock_decremented": false}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build mark decremented items: %w", err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("mark decremented items: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}
	return nil
}

func decrementedItemIDs(order domain.Order) []string {
	var ids []string
	for _, item := range order.DecrementedItems() {
		ids = append(ids, item.ID)
	}
	return ids
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, page domain.Page) (domain.OrderPage, error) {
	return r.list(ctx, sq.Eq{"user_id": userID}, page)
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	where := sq.And{}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": string(filter.Status)})
	}
	if filter.From != nil {
		where = append(where, sq.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		where = append(where, sq.LtOrEq{"created_at": *filter.To})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		where = append(where, sq.Or{
			sq.ILike{"order_number": pattern},
			sq.ILike{"ship_email": pattern},
			sq.ILike{"ship_first_name": pattern},
			sq.ILike{"ship_last_name": pattern},
		})
	}
	return r.list(ctx, where, filter.Page)
}

func (r *orderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.
		Select("status", "COUNT(*)", "COALESCE(SUM(total), 0)",
			"COALESCE(SUM(total) FILTER (WHERE payment_status = 'approved'), 0)").
		From("orders").
		GroupBy("status").
		ToSql()
	if err != nil {
		return domain.OrderStats{}, fmt.Errorf("build order stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.OrderStats{}, fmt.Errorf("order stats: %w", err)
	}
	defer rows.Close()

	byStatus := make(map[domain.OrderStatus]domain.StatusStat)
	var stats domain.OrderStats
	for rows.Next() {
		var (
			stat    domain.StatusStat
			status  string
			revenue int64
		)
		if err := rows.Scan(&status, &stat.Count, &stat.TotalAmount, &revenue); err != nil {
			return domain.OrderStats{}, fmt.Errorf("scan order stats: %w", err)
		}
		stat.Status = domain.OrderStatus(status)
		byStatus[stat.Status] = stat
		stats.TotalOrders += stat.Count
		stats.TotalRevenue += revenue
	}
	if err := rows.Err(); err != nil {
		return domain.OrderStats{}, fmt.Errorf("iterate order stats: %w", err)
	}

	for _, status := range domain.AllOrderStatuses() {
		if stat, ok := byStatus[status]; ok {
			stats.StatusBreakdown = append(stats.StatusBreakdown, stat)
		}
	}
	return stats, nil
}

func (r *orderRepository) getOne(ctx context.Context, where sq.Sqlizer) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query, args, err := r.qb.Select(orderColumns...).From("orders").Where(where).ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build select order: %w", err)
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *orderRepository) list(ctx context.Context, where sq.Sqlizer, page domain.Page) (domain.OrderPage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	countQuery, countArgs, err := r.qb.Select("COUNT(*)").From("orders").Where(where).ToSql()
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("build count orders: %w", err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return domain.OrderPage{}, fmt.Errorf("count orders: %w", err)
	}

	builder := r.qb.Select(orderColumns...).From("orders").Where(where).
		OrderBy("created_at DESC", "id DESC").
		Offset(uint64(page.Offset()))
	if page.Limit > 0 {
		builder = builder.Limit(uint64(page.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("build list orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.OrderPage{}, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return domain.OrderPage{}, fmt.Errorf("iterate order rows: %w", err)
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return domain.OrderPage{}, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return domain.OrderPage{Orders: orders, Total: total}, nil
}

// loadItems загружает позиции нескольких заказов одним запросом.
func (r *orderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	result := make(map[string][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	query, args, err := r.qb.
		Select("order_id", "id", "product_id", "name", "unit_price", "quantity", "image", "stock_decremented").
		From("order_items").
		Where(sq.Eq{"order_id": orderIDs}).
		OrderBy("order_id", "position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build load order items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity, &item.Image, &item.StockDecremented); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		result[orderID] = append(result[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return result, nil
}

func orderValues(o domain.Order) []any {
	a := o.ShippingAddress
	p := o.Payment
	return []any{
		o.ID, o.OrderNumber, nullString(o.UserID), string(o.Status),
		a.FirstName, a.LastName, a.Email, a.Phone, a.Address,
		a.City, a.Region, a.PostalCode, a.Country,
		string(p.Method), nullString(p.ExternalTransactionID), p.AuthorizationCode, p.CardBrand,
		p.MaskedCardNumber, p.InstallmentCount, string(p.Status), p.TransactionAt, p.Amount,
		o.Subtotal, o.ShippingCost, o.Tax, o.Total,
		o.Notes, o.TrackingNumber, o.EstimatedDelivery, o.DeliveredAt, o.CancelledAt, o.CancelReason,
		o.RequiresReview, o.Version, o.CreatedAt, o.UpdatedAt,
	}
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                                       domain.Order
		userID, token                           sql.NullString
		status, method, paymentStatus           string
		transactionAt, estimated, delivered, cx sql.NullTime
	)
	a := &o.ShippingAddress
	p := &o.Payment

	err := row.Scan(
		&o.ID, &o.OrderNumber, &userID, &status,
		&a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.Address,
		&a.City, &a.Region, &a.PostalCode, &a.Country,
		&method, &token, &p.AuthorizationCode, &p.CardBrand,
		&p.MaskedCardNumber, &p.InstallmentCount, &paymentStatus, &transactionAt, &p.Amount,
		&o.Subtotal, &o.ShippingCost, &o.Tax, &o.Total,
		&o.Notes, &o.TrackingNumber, &estimated, &delivered, &cx, &o.CancelReason,
		&o.RequiresReview, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.UserID = userID.String
	o.Status = domain.OrderStatus(status)
	p.Method = domain.PaymentMethod(method)
	p.ExternalTransactionID = token.String
	p.Status = domain.PaymentStatus(paymentStatus)
	p.TransactionAt = timePtr(transactionAt)
	o.EstimatedDelivery = timePtr(estimated)
	o.DeliveredAt = timePtr(delivered)
	o.CancelledAt = timePtr(cx)
	return o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
