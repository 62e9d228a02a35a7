package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/itspokchop93/fasho-backend/internal/pricing"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	log.Println("Connected to postgres!")
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// RecordOrder inserts the order and its outbox event in one transaction. The
// UNIQUE constraint on payment_ref is the compare-and-swap: of two concurrent
// callers with the same paymentRef, exactly one insert lands and the other
// re-reads the winner's row.
func (r *PostgresRepository) RecordOrder(ctx context.Context, cart *pricing.PricedCart, customer Customer, paymentRef string) (*Order, bool, error) {
	orderNumber, err := NewOrderNumber()
	if err != nil {
		return nil, false, err
	}

	itemsJSON, err := json.Marshal(cart.LineItems)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal order items: %w", err)
	}
	addonsJSON, err := json.Marshal(cart.AddonItems)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal addon items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	insert := `INSERT INTO orders
	    (order_number, payment_ref, items, addon_items, subtotal, discount,
	     coupon_code, coupon_discount, total, customer_name, customer_email, created_at)
	    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	    ON CONFLICT (payment_ref) DO NOTHING
	    RETURNING created_at`

	var createdAt time.Time
	insertErr := tx.QueryRowContext(ctx, insert,
		orderNumber,
		paymentRef,
		itemsJSON,
		addonsJSON,
		cart.Subtotal,
		cart.Discount,
		cart.CouponCode,
		cart.CouponDiscount,
		cart.Total,
		customer.Name,
		customer.Email,
	).Scan(&createdAt)

	if errors.Is(insertErr, sql.ErrNoRows) {
		// Duplicate paymentRef: another confirmation already recorded this
		// payment. Return that order untouched.
		existing, err := r.getByPaymentRef(ctx, tx, paymentRef)
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit tx: %w", err)
		}
		return existing, false, nil
	}
	if insertErr != nil {
		return nil, false, fmt.Errorf("insert order: %w", insertErr)
	}

	o := &Order{
		OrderNumber:    orderNumber,
		Items:          cart.LineItems,
		AddonItems:     cart.AddonItems,
		Subtotal:       cart.Subtotal,
		Discount:       cart.Discount,
		CouponCode:     cart.CouponCode,
		CouponDiscount: cart.CouponDiscount,
		Total:          cart.Total,
		CustomerName:   customer.Name,
		CustomerEmail:  customer.Email,
		PaymentRef:     paymentRef,
		CreatedAt:      createdAt,
	}

	payload, err := json.Marshal(o)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	outboxInsert := `INSERT INTO order_outbox (aggregate_id, event_type, payload)
	    VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, outboxInsert, orderNumber, EventOrderRecorded, payload); err != nil {
		return nil, false, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}
	return o, true, nil
}

func (r *PostgresRepository) getByPaymentRef(ctx context.Context, tx *sql.Tx, paymentRef string) (*Order, error) {
	query := `SELECT order_number, payment_ref, items, addon_items, subtotal, discount,
	                 coupon_code, coupon_discount, total, customer_name, customer_email, created_at
	          FROM orders WHERE payment_ref = $1`
	return scanOrder(tx.QueryRowContext(ctx, query, paymentRef))
}

func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	query := `SELECT order_number, payment_ref, items, addon_items, subtotal, discount,
	                 coupon_code, coupon_discount, total, customer_name, customer_email, created_at
	          FROM orders WHERE order_number = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, orderNumber))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var itemsJSON, addonsJSON []byte
	err := row.Scan(
		&o.OrderNumber,
		&o.PaymentRef,
		&itemsJSON,
		&addonsJSON,
		&o.Subtotal,
		&o.Discount,
		&o.CouponCode,
		&o.CouponDiscount,
		&o.Total,
		&o.CustomerName,
		&o.CustomerEmail,
		&o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(addonsJSON, &o.AddonItems); err != nil {
		return nil, fmt.Errorf("unmarshal addon items: %w", err)
	}
	return &o, nil
}

func (r *PostgresRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM order_outbox WHERE processed = FALSE
	          ORDER BY id ASC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *PostgresRepository) MarkEventAsProcessed(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE order_outbox SET processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
