package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

const orderQueryTimeout = 5 * time.Second

// pgUniqueViolation — код ошибки Postgres для нарушения уникального ограничения.
const pgUniqueViolation = "23505"

// OrderRepository — реализация domain.OrderRepository поверх Postgres.
//
// Save и Claim выполняются одной условной командой UPDATE: сравнение версии
// и проверка claimable-состояния находятся в WHERE, поэтому гонка двух
// конкурентных мутаций разрешается самим сервером БД, а не кодом приложения.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт репозиторий заказов поверх открытого Store.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.DB()}
}

func queryContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), orderQueryTimeout)
}

// Create сохраняет заказ и все его позиции в одной транзакции.
func (r *OrderRepository) Create(order domain.Order) error {
	ctx, cancel := queryContext()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, tenant_id, status, claimant, amount_minor, address, external_ref, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, order.ID, order.TenantID, string(order.Status), order.Claimant, order.AmountMinor,
		order.Address, order.ExternalRef, order.Version, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}

	for _, item := range order.Items {
		itemID := item.ID
		if itemID == "" {
			itemID = uuid.NewString()
		}
		createdAt := item.CreatedAt
		if createdAt.IsZero() {
			createdAt = order.CreatedAt
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, name, qty, price_minor, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, itemID, order.ID, item.Name, item.Qty, item.PriceMinor, createdAt); err != nil {
			return fmt.Errorf("insert order item for %s: %w", order.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create order %s: %w", order.ID, err)
	}
	return nil
}

// Get возвращает заказ с позициями или ErrOrderNotFound.
func (r *OrderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := queryContext()
	defer cancel()

	return r.getBy(ctx, `WHERE id = $1`, id)
}

// GetByExternalRef ищет заказ по идентификатору у платёжного провайдера.
func (r *OrderRepository) GetByExternalRef(ref string) (domain.Order, error) {
	if ref == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	ctx, cancel := queryContext()
	defer cancel()

	return r.getBy(ctx, `WHERE external_ref = $1`, ref)
}

func (r *OrderRepository) getBy(ctx context.Context, where string, arg any) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, status, claimant, amount_minor, address, external_ref, version, created_at, updated_at
		FROM orders `+where, arg)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

// ListByTenant возвращает заказы витрины от новых к старым, ограничивая выборку limit (если >0).
func (r *OrderRepository) ListByTenant(tenantID string, limit int) ([]domain.Order, error) {
	ctx, cancel := queryContext()
	defer cancel()

	query := `
		SELECT id, tenant_id, status, claimant, amount_minor, address, external_ref, version, created_at, updated_at
		FROM orders
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// Save применяет обновления одной условной командой UPDATE по версии.
// Claimant и ExternalRef через Save не переназначаются: их неизменность
// зашита в WHERE, а причина отказа уточняется повторным чтением записи.
func (r *OrderRepository) Save(order domain.Order) error {
	ctx, cancel := queryContext()
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    claimant = $2,
		    address = $3,
		    external_ref = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
		  AND (claimant = '' OR claimant = $2)
		  AND (external_ref = '' OR external_ref = $4)
	`, string(order.Status), order.Claimant, order.Address, order.ExternalRef,
		order.UpdatedAt, order.ID, order.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrExternalRefAssigned
		}
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("read update result for order %s: %w", order.ID, err)
	}
	if affected == 1 {
		return nil
	}

	return r.classifySaveRejection(ctx, order)
}

// classifySaveRejection различает причины непрошедшей условной записи.
func (r *OrderRepository) classifySaveRejection(ctx context.Context, order domain.Order) error {
	row := r.db.QueryRowContext(ctx, `
		SELECT claimant, external_ref, version
		FROM orders
		WHERE id = $1
	`, order.ID)

	var (
		claimant    string
		externalRef string
		version     int64
	)
	if err := row.Scan(&claimant, &externalRef, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("inspect rejected save for order %s: %w", order.ID, err)
	}

	if version != order.Version {
		return domain.ErrVersionConflict
	}
	if claimant != "" && order.Claimant != claimant {
		return domain.ErrClaimantImmutable
	}
	if externalRef != "" && order.ExternalRef != externalRef {
		return domain.ErrExternalRefAssigned
	}
	return domain.ErrVersionConflict
}

// Claim назначает исполнителя одной атомарной условной командой UPDATE.
// Проигравший гонку получает текущее состояние заказа и won=false без ошибки.
func (r *OrderRepository) Claim(orderID, claimantID string, expectedVersion int64) (domain.Order, bool, error) {
	ctx, cancel := queryContext()
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $1,
		    claimant = $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $3
		  AND claimant = ''
		  AND status IN ($4, $5)
		  AND version = $6
		RETURNING id, tenant_id, status, claimant, amount_minor, address, external_ref, version, created_at, updated_at
	`, string(domain.OrderStatusClaimed), claimantID, orderID,
		string(domain.OrderStatusCreated), string(domain.OrderStatusSearching), expectedVersion)

	order, err := scanOrder(row)
	if err == nil {
		items, itemsErr := r.loadItems(ctx, order.ID)
		if itemsErr != nil {
			return domain.Order{}, false, itemsErr
		}
		order.Items = items
		return order, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, false, fmt.Errorf("claim order %s: %w", orderID, err)
	}

	// Условная запись не прошла: либо заказа нет, либо гонка проиграна.
	current, getErr := r.getBy(ctx, `WHERE id = $1`, orderID)
	if getErr != nil {
		return domain.Order{}, false, getErr
	}
	return current, false, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Qty, &item.PriceMinor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item for order %s: %w", orderID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items for order %s: %w", orderID, err)
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(&order.ID, &order.TenantID, &status, &order.Claimant,
		&order.AmountMinor, &order.Address, &order.ExternalRef,
		&order.Version, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
