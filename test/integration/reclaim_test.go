package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"pollsettle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settleStep(t *testing.T) StepResult {
	t.Helper()
	resp, err := http.Post(BaseURL+"/settlement/step", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var step StepResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&step))
	return step
}

// An abandoned settlement (claimed, partially paid, then never touched
// again) must be reclaimed after the liveness window and finish paying each
// winner exactly once.
func TestStaleSettlementReclaim(t *testing.T) {
	db := dbHandle(t)

	runTag := time.Now().UnixNano() % 1_000_000_000
	p1 := uint(runTag*10 + 6)
	p2 := uint(runTag*10 + 7)
	p3 := uint(runTag*10 + 8)

	var asset Asset
	resp := postJSON(t, "/asset-config", map[string]interface{}{
		"symbol": fmt.Sprintf("RCL%d", runTag),
		"name":   "Reclaim Test Token",
	}, &asset)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	setBalance(t, p1, asset.ID, 10000)
	setBalance(t, p2, asset.ID, 10000)
	setBalance(t, p3, asset.ID, 10000)

	var poll Poll
	resp = postJSON(t, "/poll", map[string]interface{}{
		"title":                 "Abandoned mid-settlement",
		"asset_id":              asset.ID,
		"closes_at":             time.Now().Add(time.Hour),
		"house_commission_rate": 0.05,
		"options":               []string{"yes", "no"},
	}, &poll)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, poll.Options, 2)
	optYes := poll.Options[0].ID
	optNo := poll.Options[1].ID

	placeBet := func(playerID, optionID uint, amount int64) {
		resp := postJSON(t, fmt.Sprintf("/poll/%d/bet", poll.ID), map[string]interface{}{
			"player_id": playerID,
			"option_id": optionID,
			"amount":    amount,
		}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	placeBet(p1, optYes, 1000)
	placeBet(p2, optYes, 500)
	placeBet(p3, optNo, 2000)

	resp = postJSON(t, fmt.Sprintf("/poll/%d/close", poll.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Drive the settlement through claim+prepare and one committed batch,
	// so money has moved but the pipeline is not done.
	for i := 0; i < 2; i++ {
		step := settleStep(t)
		require.True(t, step.Success, "priming step failed: %s", step.Error)
		require.False(t, step.Silent, "no settlement work found; is SETTLE_GRACE_PERIOD_SEC=0?")
		require.False(t, step.Completed)
	}
	assert.Equal(t, int64(9000+2216), getBalance(t, p1, asset.ID))
	assert.Equal(t, int64(9500+1108), getBalance(t, p2, asset.ID))

	// Simulate the claiming invocation dying: push the claim far past any
	// configured liveness window.
	require.NoError(t, db.Model(&models.Poll{}).Where("id = ?", poll.ID).
		UpdateColumn("updated_at", time.Now().Add(-24*time.Hour)).Error)

	drainSettlement(t, poll.ID)

	t.Run("committed batch is not re-applied", func(t *testing.T) {
		assert.Equal(t, int64(9000+2217), getBalance(t, p1, asset.ID))
		assert.Equal(t, int64(9500+1108), getBalance(t, p2, asset.ID))
		assert.Equal(t, int64(8000), getBalance(t, p3, asset.ID))
	})

	t.Run("each winner has exactly one credit", func(t *testing.T) {
		var page RewardsLogPage
		resp := getJSON(t, fmt.Sprintf("/player-asset/%d/%d/logs?page_size=100", p1, asset.ID), &page)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		wins, remainders := 0, 0
		for _, entry := range page.Data {
			if entry.PollID != poll.ID {
				continue
			}
			switch entry.Reason {
			case "POLL_WIN":
				wins++
			case "POLL_WIN_REMAINDER":
				remainders++
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, remainders)
	})

	t.Run("settlement log totals are intact", func(t *testing.T) {
		var log SettlementLog
		resp := getJSON(t, fmt.Sprintf("/settlement-log/%d", poll.ID), &log)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int64(3500), log.TotalPool)
		assert.Equal(t, int64(175), log.Commission)
		assert.Equal(t, int64(3325), log.TotalPayout)
	})
}
