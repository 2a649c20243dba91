package token

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func itemClaim() *entity.Claim {
	return &entity.Claim{
		Kind:         entity.ClaimSingleItem,
		CategorySlug: "zgody",
		MemberID:     "zgoda-pdf-c1cc6f482f",
	}
}

func entitlement() *entity.Entitlement {
	return &entity.Entitlement{
		SessionID:  "sess-1",
		ProductIDs: []string{"dbitem:zgody:zgoda-pdf-c1cc6f482f"},
	}
}

func TestMintVerifyRoundtrip(t *testing.T) {
	s := NewTokenService("secret", time.Hour, testLogger())

	tok, err := s.Mint("sess-1", itemClaim(), entitlement())
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	sessionID, claim, err := s.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "sess-1", sessionID)
	require.Equal(t, itemClaim(), claim)
}

func TestMintRejectsUncoveredClaim(t *testing.T) {
	s := NewTokenService("secret", time.Hour, testLogger())

	other := itemClaim()
	other.MemberID = "wywiad-pdf-a843a80065"

	_, err := s.Mint("sess-1", other, entitlement())
	require.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestMintRejectsSessionMismatch(t *testing.T) {
	s := NewTokenService("secret", time.Hour, testLogger())

	_, err := s.Mint("sess-2", itemClaim(), entitlement())
	require.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestMintCategoryPurchaseCoversItem(t *testing.T) {
	s := NewTokenService("secret", time.Hour, testLogger())

	ent := &entity.Entitlement{SessionID: "sess-1", ProductIDs: []string{"dbcat:zgody"}}

	_, err := s.Mint("sess-1", itemClaim(), ent)
	require.NoError(t, err)
}

func TestVerifyExpired(t *testing.T) {
	s := NewTokenService("secret", -time.Minute, testLogger())

	tok, err := s.Mint("sess-1", itemClaim(), entitlement())
	require.NoError(t, err)

	_, _, err = s.Verify(tok)
	require.ErrorIs(t, err, common.ErrExpiredLink)
}

func TestVerifyWrongSecret(t *testing.T) {
	minter := NewTokenService("secret-a", time.Hour, testLogger())
	checker := NewTokenService("secret-b", time.Hour, testLogger())

	tok, err := minter.Mint("sess-1", itemClaim(), entitlement())
	require.NoError(t, err)

	_, _, err = checker.Verify(tok)
	require.ErrorIs(t, err, common.ErrInvalidLink)
}

func TestVerifyGarbage(t *testing.T) {
	s := NewTokenService("secret", time.Hour, testLogger())

	_, _, err := s.Verify("not.a.token")
	require.ErrorIs(t, err, common.ErrInvalidLink)
}
