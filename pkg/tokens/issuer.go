package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/decodecollective/decode-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// DeliverableClaims grants the auction winner time-limited access to the
// purchased deliverable.
type DeliverableClaims struct {
	AuctionID string `json:"auction_id"`
	BidID     string `json:"bid_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer mints deliverable-access tokens.
type Issuer struct {
	cfg config.TokensConfig
}

// NewIssuer validates the token configuration and returns an issuer.
func NewIssuer(cfg config.TokensConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("token issuer is required")
	}
	if cfg.DeliverableTTL <= 0 {
		return nil, fmt.Errorf("deliverable ttl must be positive")
	}
	return &Issuer{cfg: cfg}, nil
}

// MintDeliverableToken issues a signed token scoped to one auction win.
func (i *Issuer) MintDeliverableToken(now time.Time, auctionID, bidID uuid.UUID, email string) (string, error) {
	if auctionID == uuid.Nil {
		return "", fmt.Errorf("auction id is required")
	}
	if bidID == uuid.Nil {
		return "", fmt.Errorf("bid id is required")
	}
	if email == "" {
		return "", fmt.Errorf("recipient email is required")
	}

	claims := DeliverableClaims{
		AuctionID: auctionID.String(),
		BidID:     bidID.String(),
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.DeliverableTTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing deliverable token: %w", err)
	}
	return signed, nil
}

// ParseDeliverableToken validates a token string and returns typed claims.
func (i *Issuer) ParseDeliverableToken(tokenString string) (*DeliverableClaims, error) {
	claims := &DeliverableClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(i.cfg.Secret), nil
		},
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing deliverable token: %w", err)
	}
	return claims, nil
}
