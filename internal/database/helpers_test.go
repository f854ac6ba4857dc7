package database

import (
	"context"
	"database/sql"
	"errors"

	"offers-function/internal/models"
)

var errOfferNotFound = errors.New("offer not found")

// getOffer reads a row by id regardless of its active flag.
func (s *Session) getOffer(ctx context.Context, id int64) (models.Offer, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id)
	offer, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Offer{}, errOfferNotFound
	}
	return offer, err
}
