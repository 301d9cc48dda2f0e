package payouts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/decodecollective/decode-backend/pkg/db/models"
	"github.com/decodecollective/decode-backend/pkg/enums"
)

func setupPayoutsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS payouts (
  id TEXT PRIMARY KEY,
  recipient_id TEXT NOT NULL,
  auction_id TEXT NOT NULL UNIQUE,
  gross_amount NUMERIC NOT NULL,
  platform_fee NUMERIC NOT NULL,
  net_amount NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  unlocked_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, gdb.Exec(schema).Error)
	return gdb
}

func pendingPayout(auctionID uuid.UUID) *models.Payout {
	return &models.Payout{
		ID:          uuid.New(),
		RecipientID: uuid.New(),
		AuctionID:   auctionID,
		GrossAmount: decimal.RequireFromString("150.00"),
		PlatformFee: decimal.RequireFromString("37.50"),
		NetAmount:   decimal.RequireFromString("112.50"),
		Status:      enums.PayoutStatusPending,
	}
}

func TestCreateSwallowsDuplicateAuction(t *testing.T) {
	gdb := setupPayoutsTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	auctionID := uuid.New()
	require.NoError(t, repo.Create(ctx, pendingPayout(auctionID)))
	require.NoError(t, repo.Create(ctx, pendingPayout(auctionID)))

	var count int64
	require.NoError(t, gdb.Model(&models.Payout{}).Where("auction_id = ?", auctionID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMarkProcessingIsOneShot(t *testing.T) {
	gdb := setupPayoutsTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	auctionID := uuid.New()
	require.NoError(t, repo.Create(ctx, pendingPayout(auctionID)))

	unlockedAt := time.Now().UTC()
	moved, err := repo.MarkProcessing(ctx, auctionID, unlockedAt)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repo.MarkProcessing(ctx, auctionID, unlockedAt)
	require.NoError(t, err)
	assert.False(t, moved)

	payout, err := repo.FindByAuctionID(ctx, auctionID)
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.Equal(t, enums.PayoutStatusProcessing, payout.Status)
	require.NotNil(t, payout.UnlockedAt)
}

func TestFindByAuctionIDUnknownReturnsNil(t *testing.T) {
	gdb := setupPayoutsTestDB(t)
	repo := NewRepository(gdb)

	payout, err := repo.FindByAuctionID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, payout)
}
