package payment

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store persists gate state. Writes happen inside the gate's critical
// section (synchronous local writes), before the in-memory mutation, so a
// failed write never leaves memory and disk disagreeing.
type Store interface {
	SaveRequirement(r *Requirement) error
	SaveReceipt(r *Receipt) error
	SaveChannel(c *Channel) error
	LoadAll() (map[string]*Requirement, map[string]*Receipt, map[string]*Channel, error)
}

// SQLiteStore wraps a sql.DB connection to a SQLite database holding
// payment requirements, receipts, and channels. Amounts are stored as
// decimal strings, never floats.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs schema
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate creates all required tables if they do not already exist.
func (s *SQLiteStore) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS payment_requirements (
    context_id TEXT PRIMARY KEY,
    pricing_model TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    recipient_address TEXT NOT NULL,
    expires INTEGER,
    description TEXT
);

CREATE TABLE IF NOT EXISTS payment_receipts (
    id TEXT PRIMARY KEY,
    payer_did TEXT NOT NULL,
    recipient_did TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    tx_hash TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    context_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_channels (
    id TEXT PRIMARY KEY,
    payer_did TEXT NOT NULL,
    recipient_did TEXT NOT NULL,
    capacity TEXT NOT NULL,
    balance TEXT NOT NULL,
    currency TEXT NOT NULL,
    opened INTEGER NOT NULL,
    expires INTEGER NOT NULL,
    status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_receipts_context ON payment_receipts(context_id);
CREATE INDEX IF NOT EXISTS idx_receipts_payer ON payment_receipts(payer_did);
CREATE INDEX IF NOT EXISTS idx_channels_payer ON payment_channels(payer_did);
CREATE INDEX IF NOT EXISTS idx_channels_status ON payment_channels(status);`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRequirement upserts the requirement for its context.
func (s *SQLiteStore) SaveRequirement(r *Requirement) error {
	var expires sql.NullInt64
	if r.Expires != nil {
		expires = sql.NullInt64{Int64: r.Expires.Unix(), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO payment_requirements (context_id, pricing_model, amount, currency, recipient_address, expires, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(context_id) DO UPDATE SET
		   pricing_model = excluded.pricing_model,
		   amount = excluded.amount,
		   currency = excluded.currency,
		   recipient_address = excluded.recipient_address,
		   expires = excluded.expires,
		   description = excluded.description`,
		r.ContextID, string(r.PricingModel), r.Amount.String(), string(r.Currency), r.RecipientAddress, expires, r.Description,
	)
	if err != nil {
		return fmt.Errorf("save requirement: %w", err)
	}
	return nil
}

// SaveReceipt upserts a receipt.
func (s *SQLiteStore) SaveReceipt(r *Receipt) error {
	_, err := s.db.Exec(
		`INSERT INTO payment_receipts (id, payer_did, recipient_did, amount, currency, tx_hash, status, created_at, context_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		r.ReceiptID, r.PayerDID, r.RecipientDID, r.Amount.String(), string(r.Currency), r.TransactionHash, string(r.Status), r.Timestamp.Unix(), r.ContextID,
	)
	if err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}
	return nil
}

// SaveChannel upserts a channel.
func (s *SQLiteStore) SaveChannel(c *Channel) error {
	_, err := s.db.Exec(
		`INSERT INTO payment_channels (id, payer_did, recipient_did, capacity, balance, currency, opened, expires, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   balance = excluded.balance,
		   status = excluded.status`,
		c.ChannelID, c.PayerDID, c.RecipientDID, c.TotalCapacity.String(), c.CurrentBalance.String(), string(c.Currency), c.Opened.Unix(), c.Expires.Unix(), string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("save channel: %w", err)
	}
	return nil
}

// LoadAll reads the full payment state for gate startup.
func (s *SQLiteStore) LoadAll() (map[string]*Requirement, map[string]*Receipt, map[string]*Channel, error) {
	requirements, err := s.loadRequirements()
	if err != nil {
		return nil, nil, nil, err
	}
	receipts, err := s.loadReceipts()
	if err != nil {
		return nil, nil, nil, err
	}
	channels, err := s.loadChannels()
	if err != nil {
		return nil, nil, nil, err
	}
	return requirements, receipts, channels, nil
}

func (s *SQLiteStore) loadRequirements() (map[string]*Requirement, error) {
	rows, err := s.db.Query(
		`SELECT context_id, pricing_model, amount, currency, recipient_address, expires, description
		 FROM payment_requirements`,
	)
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Requirement)
	for rows.Next() {
		var r Requirement
		var model, amount, currency string
		var expires sql.NullInt64
		if err := rows.Scan(&r.ContextID, &model, &amount, &currency, &r.RecipientAddress, &expires, &r.Description); err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		r.PricingModel = PricingModel(model)
		r.Currency = Method(currency)
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse requirement amount: %w", err)
		}
		if expires.Valid {
			t := time.Unix(expires.Int64, 0).UTC()
			r.Expires = &t
		}
		out[r.ContextID] = &r
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadReceipts() (map[string]*Receipt, error) {
	rows, err := s.db.Query(
		`SELECT id, payer_did, recipient_did, amount, currency, tx_hash, status, created_at, context_id
		 FROM payment_receipts`,
	)
	if err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Receipt)
	for rows.Next() {
		var r Receipt
		var amount, currency, status string
		var createdAt int64
		if err := rows.Scan(&r.ReceiptID, &r.PayerDID, &r.RecipientDID, &amount, &currency, &r.TransactionHash, &status, &createdAt, &r.ContextID); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		r.Currency = Method(currency)
		r.Status = Status(status)
		r.Timestamp = time.Unix(createdAt, 0).UTC()
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse receipt amount: %w", err)
		}
		out[r.ReceiptID] = &r
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadChannels() (map[string]*Channel, error) {
	rows, err := s.db.Query(
		`SELECT id, payer_did, recipient_did, capacity, balance, currency, opened, expires, status
		 FROM payment_channels`,
	)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Channel)
	for rows.Next() {
		var c Channel
		var capacity, balance, currency, status string
		var opened, expires int64
		if err := rows.Scan(&c.ChannelID, &c.PayerDID, &c.RecipientDID, &capacity, &balance, &currency, &opened, &expires, &status); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.Currency = Method(currency)
		c.Status = ChannelStatus(status)
		c.Opened = time.Unix(opened, 0).UTC()
		c.Expires = time.Unix(expires, 0).UTC()
		if c.TotalCapacity, err = decimal.NewFromString(capacity); err != nil {
			return nil, fmt.Errorf("parse channel capacity: %w", err)
		}
		if c.CurrentBalance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("parse channel balance: %w", err)
		}
		out[c.ChannelID] = &c
	}
	return out, rows.Err()
}
