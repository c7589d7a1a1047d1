package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "orderbookcollection/internal/domain/entity/marketdata"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

const createViewsTable = `
	CREATE TABLE IF NOT EXISTS order_book_views (
		view_id       UUID PRIMARY KEY,
		instrument_id BIGINT NOT NULL,
		seq_no        BIGINT NOT NULL,
		state         VARCHAR(16) NOT NULL,
		exchange_ts   BIGINT NOT NULL,
		mid           DOUBLE PRECISION,
		depth         INTEGER NOT NULL,
		bids          JSONB NOT NULL,
		asks          JSONB NOT NULL,
		reported_at   TIMESTAMPTZ NOT NULL,
		metadata      JSONB
	);
	CREATE INDEX IF NOT EXISTS order_book_views_instrument_reported
		ON order_book_views (instrument_id, reported_at DESC)`

// Migrate creates the views table when it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, createViewsTable)
	return err
}

var viewColumns = []string{
	"view_id",
	"instrument_id",
	"seq_no",
	"state",
	"exchange_ts",
	"mid",
	"depth",
	"bids",
	"asks",
	"reported_at",
	"metadata",
}

const insertViewQuery = `
	INSERT INTO order_book_views (
		view_id, instrument_id, seq_no, state, exchange_ts, mid, depth, bids, asks, reported_at, metadata
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

func (r *Repository) AddOrderBookView(ctx context.Context, view *domain.OrderBookView) error {
	if view == nil {
		return errors.New("nil order book view")
	}
	row, err := viewRow(view)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, insertViewQuery, row...)
	return err
}

func (r *Repository) AddOrderBookViews(ctx context.Context, views []domain.OrderBookView) error {
	if len(views) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(views))
	for i := range views {
		row, err := viewRow(&views[i])
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"order_book_views"},
		viewColumns,
		pgx.CopyFromRows(rows),
	)
	return err
}

func (r *Repository) GetOrderBookViewsBetween(ctx context.Context, instrumentID uint64, from, to time.Time) ([]domain.OrderBookView, error) {
	const query = `
		SELECT view_id, instrument_id, seq_no, state, exchange_ts, mid, depth, bids, asks, reported_at, metadata
		FROM order_book_views
		WHERE instrument_id=$1
		  AND reported_at >= $2
		  AND reported_at <= $3
		ORDER BY reported_at ASC`
	rows, err := r.pool.Query(ctx, query, int64(instrumentID), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.OrderBookView
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func (r *Repository) GetLastOrderBookViews(ctx context.Context, instrumentID uint64, limit int) ([]domain.OrderBookView, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	const query = `
		SELECT view_id, instrument_id, seq_no, state, exchange_ts, mid, depth, bids, asks, reported_at, metadata
		FROM order_book_views
		WHERE instrument_id=$1
		ORDER BY reported_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, int64(instrumentID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.OrderBookView
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

// viewRow assigns a missing ID and returns the insert arguments in
// viewColumns order. Postgres has no unsigned integers, so ids and
// sequence numbers are stored as their int64 bit pattern.
func viewRow(view *domain.OrderBookView) ([]interface{}, error) {
	if view.ID == uuid.Nil {
		view.ID = uuid.New()
	}
	if view.ReportedAt.IsZero() {
		view.ReportedAt = time.Now().UTC()
	}
	bidsJSON, err := marshalLevels(view.Bids)
	if err != nil {
		return nil, err
	}
	asksJSON, err := marshalLevels(view.Asks)
	if err != nil {
		return nil, err
	}
	meta, err := marshalJSON(view.Metadata)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		view.ID,
		int64(view.InstrumentID),
		int64(view.SeqNo),
		view.State,
		int64(view.Timestamp),
		view.Mid,
		view.Depth,
		bidsJSON,
		asksJSON,
		view.ReportedAt,
		meta,
	}, nil
}

func scanView(row pgx.Row) (domain.OrderBookView, error) {
	var (
		instrumentID int64
		seqNo        int64
		exchangeTS   int64
		bidsJSON     []byte
		asksJSON     []byte
		metaJSON     []byte
	)
	view := domain.OrderBookView{}
	err := row.Scan(
		&view.ID,
		&instrumentID,
		&seqNo,
		&view.State,
		&exchangeTS,
		&view.Mid,
		&view.Depth,
		&bidsJSON,
		&asksJSON,
		&view.ReportedAt,
		&metaJSON,
	)
	if err != nil {
		return domain.OrderBookView{}, err
	}
	view.InstrumentID = uint64(instrumentID)
	view.SeqNo = uint64(seqNo)
	view.Timestamp = uint64(exchangeTS)
	if err := json.Unmarshal(bidsJSON, &view.Bids); err != nil {
		return domain.OrderBookView{}, err
	}
	if err := json.Unmarshal(asksJSON, &view.Asks); err != nil {
		return domain.OrderBookView{}, err
	}
	meta, err := unmarshalMetadata(metaJSON)
	if err != nil {
		return domain.OrderBookView{}, err
	}
	view.Metadata = meta
	return view, nil
}

// Helpers

func marshalLevels(levels []domain.Level) ([]byte, error) {
	if levels == nil {
		levels = []domain.Level{}
	}
	return json.Marshal(levels)
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func unmarshalMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}
