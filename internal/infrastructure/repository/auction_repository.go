package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidhaus/auction-backend/internal/domain/auction"
	auctionsvc "github.com/bidhaus/auction-backend/internal/service/auction"
)

// auctionRepository implements the auction store using PostgreSQL. Each
// auction is one row; bids travel inside the row as JSONB so a bid append,
// price change, and status change land in one conditional write. The
// version column is the optimistic-lock token.
type auctionRepository struct {
	db *pgxpool.Pool
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(db *pgxpool.Pool) auctionsvc.Store {
	return &auctionRepository{db: db}
}

const auctionColumns = `
	id, title, description, start_price, current_price,
	start_time, end_time, owner_id, status, bids, winner_id,
	version, created_at, updated_at
`

// Create stores a new auction at version 1
func (r *auctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	if a.ID == uuid.Nil {
		return errors.New("auction id cannot be nil")
	}
	if a.OwnerID == uuid.Nil {
		return errors.New("owner_id cannot be nil")
	}

	startPrice, currentPrice, bids, err := marshalAuctionFields(a)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	a.Version = 1
	_, err = r.db.Exec(ctx, query,
		a.ID, a.Title, a.Description, startPrice, currentPrice,
		a.StartTime, a.EndTime, a.OwnerID, a.Status.String(), bids, a.WinnerID,
		a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create auction: %w", err)
	}

	return nil
}

// GetByID retrieves an auction by ID
func (r *auctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	return a, nil
}

// Update persists the auction conditionally on the version it was read at.
// On success the stored and in-memory versions advance by one; a zero row
// count means another writer got there first.
func (r *auctionRepository) Update(ctx context.Context, a *auction.Auction) error {
	startPrice, currentPrice, bids, err := marshalAuctionFields(a)
	if err != nil {
		return err
	}

	query := `
		UPDATE auctions SET
			title = $2, description = $3, start_price = $4, current_price = $5,
			start_time = $6, end_time = $7, status = $8, bids = $9,
			winner_id = $10, updated_at = $11, version = version + 1
		WHERE id = $1 AND version = $12
	`

	tag, err := r.db.Exec(ctx, query,
		a.ID, a.Title, a.Description, startPrice, currentPrice,
		a.StartTime, a.EndTime, a.Status.String(), bids,
		a.WinnerID, a.UpdatedAt, a.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either the row vanished or the expected version is stale
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM auctions WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check auction existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	a.Version++
	return nil
}

// Delete removes an auction row
func (r *auctionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page of auctions matching the filter plus the total count
func (r *auctionRepository) List(ctx context.Context, filter auctionsvc.ListFilter) ([]*auction.Auction, int, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.Status != nil {
		args = append(args, filter.Status.String())
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM auctions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count auctions: %w", err)
	}

	orderBy := sortColumn(filter.SortBy)
	direction := "DESC"
	if filter.Ascending {
		direction = "ASC"
	}

	offset := (filter.Page - 1) * filter.PerPage
	args = append(args, filter.PerPage, offset)
	query := fmt.Sprintf(
		"SELECT %s FROM auctions%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		auctionColumns, where, orderBy, direction, len(args)-1, len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	return auctions, total, rows.Err()
}

// ListDue returns auctions owing a lifecycle transition at the given time
func (r *auctionRepository) ListDue(ctx context.Context, now time.Time) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE (status = 'upcoming' AND start_time <= $1)
		   OR (status = 'active' AND end_time <= $1)
		ORDER BY end_time
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	return auctions, rows.Err()
}

// sortColumn maps an external sort key to a safe column expression
func sortColumn(key string) string {
	switch key {
	case "end_time":
		return "end_time"
	case "start_time":
		return "start_time"
	case "current_price":
		return "(current_price->>'amount')::numeric"
	case "title":
		return "title"
	default:
		return "created_at"
	}
}

func marshalAuctionFields(a *auction.Auction) (startPrice, currentPrice, bids []byte, err error) {
	startPrice, err = json.Marshal(a.StartPrice)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal start price: %w", err)
	}
	currentPrice, err = json.Marshal(a.CurrentPrice)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal current price: %w", err)
	}
	if a.Bids == nil {
		bids = []byte("[]")
	} else {
		bids, err = json.Marshal(a.Bids)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal bids: %w", err)
		}
	}
	return startPrice, currentPrice, bids, nil
}

func scanAuction(row pgx.Row) (*auction.Auction, error) {
	var (
		a                auction.Auction
		status           string
		startPriceJSON   []byte
		currentPriceJSON []byte
		bidsJSON         []byte
	)

	err := row.Scan(
		&a.ID, &a.Title, &a.Description, &startPriceJSON, &currentPriceJSON,
		&a.StartTime, &a.EndTime, &a.OwnerID, &status, &bidsJSON, &a.WinnerID,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, ok := auction.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown auction status %q", status)
	}
	a.Status = parsed

	if err := json.Unmarshal(startPriceJSON, &a.StartPrice); err != nil {
		return nil, fmt.Errorf("failed to unmarshal start price: %w", err)
	}
	if err := json.Unmarshal(currentPriceJSON, &a.CurrentPrice); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current price: %w", err)
	}
	if err := json.Unmarshal(bidsJSON, &a.Bids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bids: %w", err)
	}

	return &a, nil
}
