package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-platform/internal/domain/orders"
	"delivery-platform/internal/ports"
)

// OrdersRepo implements persistence for the order aggregate using pgx and SQL.
// Money travels as integer cents and is stored as NUMERIC(10,2) via /100.
type OrdersRepo struct {
	pool *pgxpool.Pool
}

// NewOrdersRepo constructs a new OrdersRepo.
func NewOrdersRepo(pool *pgxpool.Pool) ports.OrderRepository {
	return &OrdersRepo{pool: pool}
}

// Create inserts the order header and its items. The caller appends the
// order.created event in the same unit of work.
func (r *OrdersRepo) Create(ctx context.Context, order *orders.Order) error {
	q := querier(ctx, r.pool)

	err := q.QueryRow(ctx, `
		INSERT INTO orders
		    (number, customer_id, restaurant_id, status,
		     subtotal, tax, delivery_fee, tip, discount, total,
		     version, correlation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4,
		        $5::numeric/100, $6::numeric/100, $7::numeric/100, $8::numeric/100, $9::numeric/100, $10::numeric/100,
		        $11, $12, $13, $13)
		RETURNING id`,
		order.Number, order.CustomerID, order.RestaurantID, order.Status,
		int64(order.Subtotal), int64(order.Tax), int64(order.DeliveryFee), int64(order.Tip), int64(order.Discount), int64(order.Total),
		order.Version, order.CorrelationID, order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		it := &order.Items[i]
		err = q.QueryRow(ctx, `
			INSERT INTO order_items (order_id, name, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4::numeric/100, $5::numeric/100)
			RETURNING id`,
			order.ID, it.Name, it.Quantity, int64(it.UnitPrice), int64(it.Total),
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item %q: %w", it.Name, err)
		}
		it.OrderID = order.ID
	}

	return nil
}

// GetByNumber retrieves an order by its unique number, including its items.
func (r *OrdersRepo) GetByNumber(ctx context.Context, number string) (*orders.Order, error) {
	q := querier(ctx, r.pool)

	var order orders.Order
	err := q.QueryRow(ctx, `
		SELECT id, number, customer_id, restaurant_id, driver_id, status,
		       (subtotal*100)::bigint, (tax*100)::bigint, (delivery_fee*100)::bigint,
		       (tip*100)::bigint, (discount*100)::bigint, (total*100)::bigint,
		       version, correlation_id, payment_id, failure_reason, cancelled_by,
		       created_at, confirmed_at, cancelled_at, delivered_at, updated_at
		FROM orders
		WHERE number = $1
	`, number).Scan(
		&order.ID, &order.Number, &order.CustomerID, &order.RestaurantID, &order.DriverID, &order.Status,
		&order.Subtotal, &order.Tax, &order.DeliveryFee, &order.Tip, &order.Discount, &order.Total,
		&order.Version, &order.CorrelationID, &order.PaymentID, &order.FailureReason, &order.CancelledBy,
		&order.CreatedAt, &order.ConfirmedAt, &order.CancelledAt, &order.DeliveredAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, name, quantity, (unit_price*100)::bigint, (total_price*100)::bigint
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item orders.OrderItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return nil, err
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	return &order, rows.Err()
}

// UpdateCAS persists a transitioned aggregate only if the stored version
// still equals expectedVersion. applied=false means a concurrent writer won.
func (r *OrdersRepo) UpdateCAS(ctx context.Context, order *orders.Order, expectedVersion int64) (bool, error) {
	q := querier(ctx, r.pool)

	var id int64
	err := q.QueryRow(ctx, `
		UPDATE orders
		SET status = $1, driver_id = $2, payment_id = $3,
		    failure_reason = $4, cancelled_by = $5,
		    confirmed_at = $6, cancelled_at = $7, delivered_at = $8,
		    version = $9, updated_at = $10
		WHERE id = $11 AND version = $12
		RETURNING id
	`, order.Status, order.DriverID, order.PaymentID,
		order.FailureReason, order.CancelledBy,
		order.ConfirmedAt, order.CancelledAt, order.DeliveredAt,
		order.Version, order.UpdatedAt,
		order.ID, expectedVersion,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NextOrderSeq returns the next per-day sequence for order numbering.
func (r *OrdersRepo) NextOrderSeq(ctx context.Context, day time.Time) (int64, error) {
	q := querier(ctx, r.pool)

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	var n int64
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) + 1 FROM orders WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&n)
	return n, err
}
