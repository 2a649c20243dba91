package token

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/golang-jwt/jwt/v5"
)

const serviceName = "token"

// downloadClaims is the wire form of a download token. The token is only a
// capability hint bound to a purchase session; the entitlement behind it is
// re-verified on every redemption.
type downloadClaims struct {
	Kind string `json:"kind"`
	Cat  string `json:"cat,omitempty"`
	Item string `json:"item,omitempty"`
	PID  string `json:"pid,omitempty"`
	Path string `json:"path,omitempty"`
	jwt.RegisteredClaims
}

type tokenService struct {
	secret []byte
	ttl    time.Duration
	log    *slog.Logger
}

func NewTokenService(secret string, ttl time.Duration, log *slog.Logger) *tokenService {
	return &tokenService{
		secret: []byte(secret),
		ttl:    ttl,
		log:    log.With(slog.String("service", serviceName)),
	}
}

// Mint signs a download token for a claim the entitlement actually covers.
// The session id goes into the subject; expiry is fixed at mint time and is
// independent of later re-verification.
func (s *tokenService) Mint(sessionID string, claim *entity.Claim, ent *entity.Entitlement) (string, error) {
	if ent == nil || ent.SessionID != sessionID || !ent.Covers(claim) {
		return "", fmt.Errorf("claim %s not granted to session: %w", claim.Kind, common.ErrAccessDenied)
	}

	now := time.Now()
	claims := &downloadClaims{
		Kind: string(claim.Kind),
		Cat:  claim.CategorySlug,
		Item: claim.MemberID,
		PID:  claim.ProductID,
		Path: claim.LegacyPath,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("cannot sign download token: %w", err)
	}

	return signed, nil
}

// Verify checks signature and expiry and returns the session id with the
// decoded claim. Expiry is reported distinctly so callers can tell the user
// the link merely expired.
func (s *tokenService) Verify(token string) (string, *entity.Claim, error) {
	var claims downloadClaims

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", nil, fmt.Errorf("%w: %v", common.ErrExpiredLink, err)
		}

		return "", nil, fmt.Errorf("%w: %v", common.ErrInvalidLink, err)
	}

	if claims.Subject == "" {
		return "", nil, fmt.Errorf("token has no session: %w", common.ErrInvalidLink)
	}

	return claims.Subject, &entity.Claim{
		Kind:         entity.ClaimKind(claims.Kind),
		CategorySlug: claims.Cat,
		MemberID:     claims.Item,
		ProductID:    claims.PID,
		LegacyPath:   claims.Path,
	}, nil
}
