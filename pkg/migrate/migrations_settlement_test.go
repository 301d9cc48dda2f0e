package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/decodecollective/decode-backend/pkg/migrate"
)

func TestSettlementMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_settlement_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no settlement migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CONSTRAINT uq_payouts_auction_id UNIQUE (auction_id)",
		"CONSTRAINT uq_webhook_events_event_id UNIQUE (event_id)",
		"CONSTRAINT uq_offer_purchases_intent UNIQUE (payment_intent_id)",
		"CONSTRAINT chk_limited_offers_sold CHECK (quantity_sold <= quantity)",
		"DROP TABLE payouts",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
