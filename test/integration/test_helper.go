package integration

import (
	"os"
	"sync"
	"testing"
	"time"

	"pollsettle/pkg/config"

	"gorm.io/gorm"
)

// BaseURL points at a running API server. Settlement tests expect the
// server to run with SETTLE_GRACE_PERIOD_SEC=0 so freshly closed polls
// are picked up immediately.
var BaseURL = "http://localhost:8080"

var dbOnce sync.Once

// dbHandle opens a direct database connection for tests that manipulate
// rows the API does not expose, like backdating a settlement claim.
func dbHandle(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("DB_HOST") == "" {
		t.Skip("DB_HOST not set; this test needs direct database access")
	}
	dbOnce.Do(config.InitDB)
	return config.DB
}

func TestMain(m *testing.M) {
	if url := os.Getenv("API_BASE_URL"); url != "" {
		BaseURL = url
	}

	// wait for the server to come up
	time.Sleep(5 * time.Second)

	code := m.Run()
	os.Exit(code)
}
