// Package payments parses order tokens and reconciles payment webhooks.
package payments

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/avetra/funnel-bot/internal/models"
)

// TokenKind tells which encoding a parsed token used.
type TokenKind int

const (
	// TokenFull carries user, tariff, discount and timestamp.
	TokenFull TokenKind = iota
	// TokenLegacy predates discounts: user, tariff and timestamp only.
	TokenLegacy
	// TokenMinimal is the bare "bot_<uid>" fallback some forms produce.
	TokenMinimal
)

const tokenPrefix = "bot_"

// Token is the order reference round-tripped through the payment
// provider's free-form comment field.
type Token struct {
	Kind      TokenKind
	UserID    int64
	Tariff    models.TariffKind
	Discount  int
	Timestamp int64
}

// EncodeToken builds the full-form token for a new payment link.
func EncodeToken(userID int64, tariff models.TariffKind, discount int, ts int64) string {
	return fmt.Sprintf("%s%d_%s_%d_%d", tokenPrefix, userID, tariff, discount, ts)
}

// ParseToken decodes any of the three token forms; anything else that
// still carries a parseable user id degrades to the minimal form. The
// discount is validated against bonusUnit: anything that is not a
// non-negative multiple of it is treated as zero rather than rejecting
// the payment.
func ParseToken(raw string, bonusUnit int) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, tokenPrefix) {
		return nil, fmt.Errorf("not an order token: %q", raw)
	}

	parts := strings.Split(raw, "_")
	// parts[0] is the "bot" prefix. The user id is the one part every
	// form must carry.
	if len(parts) < 2 {
		return nil, fmt.Errorf("malformed order token: %q", raw)
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad user id in token %q: %w", raw, err)
	}

	switch len(parts) {
	case 5:
		tariff := models.TariffKind(parts[2])
		discount, derr := strconv.Atoi(parts[3])
		if derr != nil || discount < 0 || bonusUnit <= 0 || discount%bonusUnit != 0 {
			discount = 0
		}
		ts, terr := strconv.ParseInt(parts[4], 10, 64)
		if tariff.Known() && terr == nil {
			return &Token{Kind: TokenFull, UserID: userID, Tariff: tariff, Discount: discount, Timestamp: ts}, nil
		}

	case 4:
		tariff := models.TariffKind(parts[2])
		ts, terr := strconv.ParseInt(parts[3], 10, 64)
		if tariff.Known() && terr == nil {
			return &Token{Kind: TokenLegacy, UserID: userID, Tariff: tariff, Timestamp: ts}, nil
		}
	}

	// Payment forms truncate or mangle the comment field in the wild.
	// Salvage the tariff when it is recognizable, otherwise sell the
	// cheapest one rather than losing the payment.
	tariff := models.TariffBasic
	if len(parts) > 2 {
		if k := models.TariffKind(parts[2]); k.Known() {
			tariff = k
		}
	}
	return &Token{Kind: TokenMinimal, UserID: userID, Tariff: tariff}, nil
}
