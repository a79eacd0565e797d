package durability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/go-sql-driver/mysql"

	"github.com/hyperperp/matchcore/internal/models"
)

// convertURIToDSN converts a TiDB Cloud URI to MySQL DSN format. Supports
// both mysql:// URI format and a traditional DSN passed straight through.
func convertURIToDSN(connectionString string) (string, error) {
	if !strings.HasPrefix(connectionString, "mysql://") {
		return connectionString, nil
	}

	u, err := url.Parse(connectionString)
	if err != nil {
		return "", fmt.Errorf("failed to parse URI: %w", err)
	}

	if u.Scheme != "mysql" {
		return "", fmt.Errorf("unsupported scheme: %s (expected mysql)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("host is required")
	}

	var userInfo string
	if u.User != nil {
		username := u.User.Username()
		password, _ := u.User.Password()
		if password != "" {
			userInfo = username + ":" + password
		} else {
			userInfo = username
		}
	}

	database := strings.TrimPrefix(u.Path, "/")
	if database == "" {
		database = "test"
	}

	dsn := fmt.Sprintf("%s@tcp(%s)/%s", userInfo, u.Host, database)

	defaultParams := url.Values{
		"parseTime": []string{"true"},
		"charset":   []string{"utf8mb4"},
		"collation": []string{"utf8mb4_unicode_ci"},
	}
	existingParams := u.Query()
	for key, values := range defaultParams {
		if !existingParams.Has(key) {
			existingParams[key] = values
		}
	}
	if len(existingParams) > 0 {
		dsn += "?" + existingParams.Encode()
	}

	return dsn, nil
}

// Connect establishes a connection to the MySQL/TiDB database named by the
// DB_DSN environment variable. Supports both traditional DSN and TiDB Cloud
// URI formats.
func Connect() (*sql.DB, error) {
	connectionString := os.Getenv("DB_DSN")
	if connectionString == "" {
		return nil, fmt.Errorf("DB_DSN environment variable is required")
	}

	dsn, err := convertURIToDSN(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to process connection string: %w", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	return db, nil
}

// Schema is the DDL for the tables this store reads and writes, generalized
// from the teacher's auto-increment orders/trades tables to the spec's
// UUID/decimal-string/enum layout (grounded on the Rust original's
// database.rs table definitions).
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id CHAR(36) PRIMARY KEY,
	owner_addr VARCHAR(128) NOT NULL,
	market_id BIGINT NOT NULL,
	side VARCHAR(4) NOT NULL,
	type VARCHAR(6) NOT NULL,
	size VARCHAR(64) NOT NULL,
	price VARCHAR(64) NULL,
	filled_size VARCHAR(64) NOT NULL,
	status VARCHAR(16) NOT NULL,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	expires_at DATETIME(6) NULL,
	INDEX idx_orders_market_status (market_id, status),
	INDEX idx_orders_owner (owner_addr, created_at)
);

CREATE TABLE IF NOT EXISTS trades (
	id CHAR(36) PRIMARY KEY,
	market_id BIGINT NOT NULL,
	taker_order_id CHAR(36) NOT NULL,
	maker_order_id CHAR(36) NOT NULL,
	taker_addr VARCHAR(128) NOT NULL,
	maker_addr VARCHAR(128) NOT NULL,
	size VARCHAR(64) NOT NULL,
	price VARCHAR(64) NOT NULL,
	side VARCHAR(4) NOT NULL,
	created_at DATETIME(6) NOT NULL,
	settlement_batch_id CHAR(36) NULL,
	INDEX idx_trades_batch (settlement_batch_id),
	INDEX idx_trades_market_pending (market_id, settlement_batch_id, created_at),
	INDEX idx_trades_taker (taker_addr, created_at),
	INDEX idx_trades_maker (maker_addr, created_at)
);

CREATE TABLE IF NOT EXISTS settlement_batches (
	id CHAR(36) PRIMARY KEY,
	market_id BIGINT NOT NULL,
	oracle_timestamp BIGINT NOT NULL,
	min_price VARCHAR(64) NOT NULL,
	max_price VARCHAR(64) NOT NULL,
	expiry_timestamp BIGINT NOT NULL,
	status VARCHAR(16) NOT NULL,
	transaction_hash VARCHAR(128) NULL,
	created_at DATETIME(6) NOT NULL
);
`

// MySQLStore implements Store against MySQL/TiDB via database/sql, following
// the teacher's prepared-statement idiom in internal/db and internal/engine.
type MySQLStore struct {
	db *sql.DB

	insertOrderStmt  *sql.Stmt
	updateOrderStmt  *sql.Stmt
	selectOrderStmt  *sql.Stmt
	insertTradeStmt  *sql.Stmt
}

// NewMySQLStore prepares the statements MySQLStore needs against an already
// open, already-migrated *sql.DB.
func NewMySQLStore(db *sql.DB) (*MySQLStore, error) {
	s := &MySQLStore{db: db}
	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("failed to prepare SQL statements: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) prepareStatements() error {
	var err error

	s.insertOrderStmt, err = s.db.Prepare(`
		INSERT INTO orders (
			id, owner_addr, market_id, side, type, price,
			size, filled_size, status, created_at, updated_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert order: %w", err)
	}

	s.updateOrderStmt, err = s.db.Prepare(`
		UPDATE orders SET filled_size = ?, status = ?, updated_at = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare update order: %w", err)
	}

	s.selectOrderStmt, err = s.db.Prepare(`
		SELECT id, owner_addr, market_id, side, type, price,
		       size, filled_size, status, created_at, updated_at, expires_at
		FROM orders WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare select order: %w", err)
	}

	s.insertTradeStmt, err = s.db.Prepare(`
		INSERT INTO trades (
			id, market_id, taker_order_id, maker_order_id, taker_addr, maker_addr,
			size, price, side, created_at, settlement_batch_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert trade: %w", err)
	}

	return nil
}

// Close releases prepared statements held by the store.
func (s *MySQLStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.insertOrderStmt, s.updateOrderStmt, s.selectOrderStmt, s.insertTradeStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

func (s *MySQLStore) InsertOrder(ctx context.Context, o *models.Order) error {
	var priceVal interface{}
	if o.Price != nil {
		priceVal = o.Price.String()
	}
	var expiresVal interface{}
	if o.ExpiresAt != nil {
		expiresVal = *o.ExpiresAt
	}

	_, err := s.insertOrderStmt.ExecContext(ctx,
		o.ID.String(), o.OwnerAddr, o.MarketID, string(o.Side), string(o.Type), priceVal,
		o.Size.String(), o.FilledSize.String(), string(o.Status), o.CreatedAt, o.UpdatedAt, expiresVal,
	)
	if err != nil {
		if isDuplicateKeyErr(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *MySQLStore) UpdateOrder(ctx context.Context, o *models.Order) error {
	res, err := s.updateOrderStmt.ExecContext(ctx, o.FilledSize.String(), string(o.Status), o.UpdatedAt, o.ID.String())
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if n == 0 {
		// MySQL counts changed rows, so rewriting identical values reports 0;
		// only an unknown id is ErrNotFound.
		if _, err := s.GetOrder(ctx, o.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) CancelOrder(ctx context.Context, id uuid.UUID, cancelledAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, string(models.OrderStatusCancelled), cancelledAt, id.String(),
		string(models.OrderStatusPending), string(models.OrderStatusPartiallyFilled))
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel order rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	if _, err := s.GetOrder(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := s.selectOrderStmt.QueryRowContext(ctx, id.String())
	return scanOrder(row)
}

func (s *MySQLStore) GetPendingOrders(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_addr, market_id, side, type, price,
		       size, filled_size, status, created_at, updated_at, expires_at
		FROM orders
		WHERE status IN (?, ?)
		ORDER BY created_at ASC
	`, string(models.OrderStatusPending), string(models.OrderStatusPartiallyFilled))
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *MySQLStore) OrdersByUser(ctx context.Context, owner string, status *models.OrderStatus, limit, offset int) ([]*models.Order, error) {
	query := `
		SELECT id, owner_addr, market_id, side, type, price,
		       size, filled_size, status, created_at, updated_at, expires_at
		FROM orders WHERE owner_addr = ?
	`
	args := []interface{}{owner}
	if status != nil {
		query += " AND status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC"
	query += limitOffsetClause(limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *MySQLStore) InsertTrade(ctx context.Context, t *models.Trade) error {
	var batchVal interface{}
	if t.SettlementBatchID != nil {
		batchVal = t.SettlementBatchID.String()
	}
	_, err := s.insertTradeStmt.ExecContext(ctx,
		t.ID.String(), t.MarketID, t.TakerOrderID.String(), t.MakerOrderID.String(),
		t.TakerAddr, t.MakerAddr, t.Size.String(), t.Price.String(), string(t.Side),
		t.CreatedAt, batchVal,
	)
	if err != nil {
		if isDuplicateKeyErr(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetPendingTrades(ctx context.Context) ([]*models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, taker_order_id, maker_order_id, taker_addr, maker_addr,
		       size, price, side, created_at, settlement_batch_id
		FROM trades WHERE settlement_batch_id IS NULL
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *MySQLStore) AssignTradesToBatch(ctx context.Context, tradeIDs []uuid.UUID, batchID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign trades tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range tradeIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE trades SET settlement_batch_id = ?
			WHERE id = ? AND (settlement_batch_id IS NULL OR settlement_batch_id = ?)
		`, batchID.String(), id.String(), batchID.String())
		if err != nil {
			return fmt.Errorf("assign trade %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("assign trade rows affected: %w", err)
		}
		if n == 0 {
			// 0 changed rows: unknown trade, already in this batch, or in another.
			var current sql.NullString
			err := tx.QueryRowContext(ctx, `SELECT settlement_batch_id FROM trades WHERE id = ?`, id.String()).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("lookup trade %s: %w", id, err)
			}
			if current.String != batchID.String() {
				return models.ErrAlreadyAssigned
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assign trades tx: %w", err)
	}
	return nil
}

func (s *MySQLStore) TradesByUser(ctx context.Context, addr string, start, end time.Time, limit, offset int) ([]*models.Trade, error) {
	query := `
		SELECT id, market_id, taker_order_id, maker_order_id, taker_addr, maker_addr,
		       size, price, side, created_at, settlement_batch_id
		FROM trades WHERE (taker_addr = ? OR maker_addr = ?)
	`
	args := []interface{}{addr, addr}
	query, args = appendTimeRange(query, args, start, end)
	query += " ORDER BY created_at DESC"
	query += limitOffsetClause(limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades by user: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// AllTrades returns every trade in a created_at range with no address
// filter, grounded on the Rust original's get_all_trades (user_queries.rs,
// database.rs).
func (s *MySQLStore) AllTrades(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.Trade, error) {
	query := `
		SELECT id, market_id, taker_order_id, maker_order_id, taker_addr, maker_addr,
		       size, price, side, created_at, settlement_batch_id
		FROM trades WHERE 1 = 1
	`
	var args []interface{}
	query, args = appendTimeRange(query, args, start, end)
	query += " ORDER BY created_at DESC"
	query += limitOffsetClause(limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query all trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// appendTimeRange extends a WHERE clause with an optional [start, end]
// bound on created_at; a zero start or end leaves that side open.
func appendTimeRange(query string, args []interface{}, start, end time.Time) (string, []interface{}) {
	if !start.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, start)
	}
	if !end.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, end)
	}
	return query, args
}

// limitOffsetClause renders LIMIT/OFFSET directly since both are
// Go ints formatted with %d, never user-controlled strings. MySQL rejects a
// bare OFFSET without LIMIT, so an offset with no limit gets an unbounded
// LIMIT to carry it.
func limitOffsetClause(limit, offset int) string {
	clause := ""
	switch {
	case limit > 0:
		clause += fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		clause += " LIMIT 18446744073709551615"
	}
	if offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}
	return clause
}

func (s *MySQLStore) InsertSettlementBatch(ctx context.Context, b *models.SettlementBatch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement_batches (
			id, market_id, oracle_timestamp, min_price, max_price,
			expiry_timestamp, status, transaction_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID.String(), b.MarketID, b.OracleTimestamp, b.MinPrice.String(), b.MaxPrice.String(),
		b.ExpiryTimestamp, string(b.Status), b.TransactionHash, b.CreatedAt)
	if err != nil {
		if isDuplicateKeyErr(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("insert settlement batch: %w", err)
	}
	return nil
}

func (s *MySQLStore) UpdateSettlementBatchStatus(ctx context.Context, id uuid.UUID, status models.BatchStatus, txHash *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE settlement_batches SET status = ?, transaction_hash = COALESCE(?, transaction_hash)
		WHERE id = ?
	`, string(status), txHash, id.String())
	if err != nil {
		return fmt.Errorf("update settlement batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update settlement batch rows affected: %w", err)
	}
	if n == 0 {
		// 0 changed rows also covers an identical rewrite of a known batch.
		if _, err := s.GetSettlementBatch(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) GetSettlementBatch(ctx context.Context, id uuid.UUID) (*models.SettlementBatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, market_id, oracle_timestamp, min_price, max_price,
		       expiry_timestamp, status, transaction_hash, created_at
		FROM settlement_batches WHERE id = ?
	`, id.String())

	var b models.SettlementBatch
	var idStr string
	var minPrice, maxPrice string
	var txHash sql.NullString

	err := row.Scan(&idStr, &b.MarketID, &b.OracleTimestamp, &minPrice, &maxPrice,
		&b.ExpiryTimestamp, &b.Status, &txHash, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan settlement batch: %w", err)
	}
	b.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse batch id: %w", err)
	}
	if err := setDecimal(&b.MinPrice, minPrice); err != nil {
		return nil, err
	}
	if err := setDecimal(&b.MaxPrice, maxPrice); err != nil {
		return nil, err
	}
	if txHash.Valid {
		b.TransactionHash = &txHash.String
	}
	return &b, nil
}

func isDuplicateKeyErr(err error) bool {
	return strings.Contains(err.Error(), "Duplicate entry")
}
