package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Asset struct {
	ID     uint   `json:"id"`
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

type PollOption struct {
	ID         uint   `json:"id"`
	Label      string `json:"label"`
	TotalStake int64  `json:"total_stake"`
	BetCount   int    `json:"bet_count"`
}

type Poll struct {
	ID              uint            `json:"id"`
	BettingStatus   string          `json:"betting_status"`
	TotalStake      int64           `json:"total_stake"`
	IsSettled       bool            `json:"is_settled"`
	HouseCommission int64           `json:"house_commission"`
	AnswerOptionIDs json.RawMessage `json:"answer_option_ids"`
	RequiresReview  bool            `json:"requires_review"`
	Options         []PollOption    `json:"options"`
}

type PlayerBalance struct {
	PlayerID uint  `json:"player_id"`
	AssetID  uint  `json:"asset_id"`
	Balance  int64 `json:"balance"`
}

type StepResult struct {
	Success   bool   `json:"success"`
	Phase     string `json:"phase"`
	PollID    uint   `json:"pollId"`
	Completed bool   `json:"completed"`
	Silent    bool   `json:"silent"`
	Error     string `json:"error"`
}

type SettlementLog struct {
	PollID       uint    `json:"poll_id"`
	IsRefund     bool    `json:"is_refund"`
	TotalPool    int64   `json:"total_pool"`
	Commission   int64   `json:"commission"`
	TotalPayout  int64   `json:"total_payout"`
	TotalWinners int     `json:"total_winners"`
	HouseEdge    float64 `json:"house_edge"`
}

type RewardsLogPage struct {
	Data []struct {
		Delta  int64  `json:"delta"`
		Reason string `json:"reason"`
		PollID uint   `json:"poll_id"`
	} `json:"data"`
	Total int64 `json:"total"`
}

func postJSON(t *testing.T, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(BaseURL+path, "application/json", bytes.NewBuffer(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func getJSON(t *testing.T, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(BaseURL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func setBalance(t *testing.T, playerID, assetID uint, amount int64) {
	t.Helper()
	resp := postJSON(t, "/player-asset/adjust", map[string]interface{}{
		"player_id": playerID,
		"asset_id":  assetID,
		"amount":    amount,
		"op":        "SET",
		"reason":    "TEST_FUNDING",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func getBalance(t *testing.T, playerID, assetID uint) int64 {
	t.Helper()
	var bal PlayerBalance
	resp := getJSON(t, fmt.Sprintf("/player-asset/%d/%d", playerID, assetID), &bal)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return bal.Balance
}

// drainSettlement ticks the step endpoint until the target poll reports
// completion. Each tick runs at most one phase, so a small poll needs
// four productive steps (prepare, process, finalize, notify).
func drainSettlement(t *testing.T, pollID uint) {
	t.Helper()
	for i := 0; i < 40; i++ {
		var step StepResult
		resp, err := http.Post(BaseURL+"/settlement/step", "application/json", nil)
		require.NoError(t, err)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&step))
		resp.Body.Close()

		if step.Completed && step.PollID == pollID {
			return
		}
		if !step.Success && !step.Silent {
			t.Fatalf("settlement step failed: %s", step.Error)
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("settlement did not complete within 40 steps")
}

func TestSettlementEndToEnd(t *testing.T) {
	// unique ids per run so reruns never collide on the symbol index
	runTag := time.Now().UnixNano() % 1_000_000_000
	p1 := uint(runTag*10 + 1)
	p2 := uint(runTag*10 + 2)
	p3 := uint(runTag*10 + 3)

	var asset Asset
	resp := postJSON(t, "/asset-config", map[string]interface{}{
		"symbol": fmt.Sprintf("TST%d", runTag),
		"name":   "Settlement Test Token",
	}, &asset)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotZero(t, asset.ID)

	setBalance(t, p1, asset.ID, 10000)
	setBalance(t, p2, asset.ID, 10000)
	setBalance(t, p3, asset.ID, 10000)

	var poll Poll
	resp = postJSON(t, "/poll", map[string]interface{}{
		"title":                 "Will it settle?",
		"asset_id":              asset.ID,
		"closes_at":             time.Now().Add(time.Hour),
		"house_commission_rate": 0.05,
		"options":               []string{"yes", "no"},
	}, &poll)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, poll.Options, 2)
	optYes := poll.Options[0].ID
	optNo := poll.Options[1].ID

	// two bets on yes, one larger bet on no: yes wins on bet count
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

	assert.Equal(t, int64(9000), getBalance(t, p1, asset.ID))
	assert.Equal(t, int64(9500), getBalance(t, p2, asset.ID))
	assert.Equal(t, int64(8000), getBalance(t, p3, asset.ID))

	resp = postJSON(t, fmt.Sprintf("/poll/%d/close", poll.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("bets rejected after close", func(t *testing.T) {
		resp := postJSON(t, fmt.Sprintf("/poll/%d/bet", poll.ID), map[string]interface{}{
			"player_id": p1,
			"option_id": optYes,
			"amount":    100,
		}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	drainSettlement(t, poll.ID)

	t.Run("poll is settled", func(t *testing.T) {
		var settled Poll
		resp := getJSON(t, fmt.Sprintf("/poll/%d", poll.ID), &settled)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, settled.IsSettled)
		assert.Equal(t, "SETTLED", settled.BettingStatus)
		assert.False(t, settled.RequiresReview)
		// pool 3500, 5% commission floors to 175
		assert.Equal(t, int64(175), settled.HouseCommission)

		var winners []uint
		require.NoError(t, json.Unmarshal(settled.AnswerOptionIDs, &winners))
		assert.Equal(t, []uint{optYes}, winners)
	})

	t.Run("payouts land with the remainder on the largest winner", func(t *testing.T) {
		// payout pool 3325 over 1500 winning stake:
		// p1 floor(3325*1000/1500)=2216 plus the 1-unit remainder, p2 1108
		assert.Equal(t, int64(9000+2217), getBalance(t, p1, asset.ID))
		assert.Equal(t, int64(9500+1108), getBalance(t, p2, asset.ID))
		assert.Equal(t, int64(8000), getBalance(t, p3, asset.ID))
	})

	t.Run("settlement log records the pool", func(t *testing.T) {
		var log SettlementLog
		resp := getJSON(t, fmt.Sprintf("/settlement-log/%d", poll.ID), &log)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, poll.ID, log.PollID)
		assert.False(t, log.IsRefund)
		assert.Equal(t, int64(3500), log.TotalPool)
		assert.Equal(t, int64(175), log.Commission)
		assert.Equal(t, int64(3325), log.TotalPayout)
		assert.Equal(t, 2, log.TotalWinners)
		assert.InDelta(t, 0.05, log.HouseEdge, 0.001)
	})

	t.Run("winner has an audit trail", func(t *testing.T) {
		var page RewardsLogPage
		resp := getJSON(t, fmt.Sprintf("/player-asset/%d/%d/logs", p1, asset.ID), &page)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var sawStake, sawWin bool
		for _, entry := range page.Data {
			if entry.PollID != poll.ID {
				continue
			}
			switch entry.Reason {
			case "BET_STAKE":
				sawStake = true
				assert.Equal(t, int64(-1000), entry.Delta)
			case "POLL_WIN":
				sawWin = true
				assert.Equal(t, int64(2216), entry.Delta)
			case "POLL_WIN_REMAINDER":
				assert.Equal(t, int64(1), entry.Delta)
			}
		}
		assert.True(t, sawStake, "missing BET_STAKE entry")
		assert.True(t, sawWin, "missing POLL_WIN entry")
	})

	t.Run("settling twice is a no-op", func(t *testing.T) {
		before := getBalance(t, p1, asset.ID)
		var step StepResult
		resp, err := http.Post(BaseURL+"/settlement/step", "application/json", nil)
		require.NoError(t, err)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&step))
		resp.Body.Close()
		assert.Equal(t, before, getBalance(t, p1, asset.ID))
	})
}

func TestSettlementSplitsTiedPolls(t *testing.T) {
	runTag := time.Now().UnixNano() % 1_000_000_000
	p1 := uint(runTag*10 + 4)
	p2 := uint(runTag*10 + 5)

	var asset Asset
	resp := postJSON(t, "/asset-config", map[string]interface{}{
		"symbol": fmt.Sprintf("TIE%d", runTag),
		"name":   "Tie Test Token",
	}, &asset)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	setBalance(t, p1, asset.ID, 5000)
	setBalance(t, p2, asset.ID, 5000)

	var poll Poll
	resp = postJSON(t, "/poll", map[string]interface{}{
		"title":                 "Tied poll",
		"asset_id":              asset.ID,
		"closes_at":             time.Now().Add(time.Hour),
		"house_commission_rate": 0.05,
		"options":               []string{"heads", "tails"},
	}, &poll)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// one bet each side: equal participation, both options win and the
	// commissioned pool is shared in proportion to stake
	resp = postJSON(t, fmt.Sprintf("/poll/%d/bet", poll.ID), map[string]interface{}{
		"player_id": p1, "option_id": poll.Options[0].ID, "amount": int64(1200),
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = postJSON(t, fmt.Sprintf("/poll/%d/bet", poll.ID), map[string]interface{}{
		"player_id": p2, "option_id": poll.Options[1].ID, "amount": int64(800),
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, fmt.Sprintf("/poll/%d/close", poll.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	drainSettlement(t, poll.ID)

	// pool 2000, commission 100, payout pool 1900 split 1200:800
	assert.Equal(t, int64(5000-1200+1140), getBalance(t, p1, asset.ID))
	assert.Equal(t, int64(5000-800+760), getBalance(t, p2, asset.ID))

	var log SettlementLog
	resp = getJSON(t, fmt.Sprintf("/settlement-log/%d", poll.ID), &log)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, log.IsRefund)
	assert.Equal(t, int64(100), log.Commission)
	assert.Equal(t, int64(1900), log.TotalPayout)
	assert.Equal(t, 2, log.TotalWinners)
}

func TestSettlementRefundsEmptyPoll(t *testing.T) {
	runTag := time.Now().UnixNano() % 1_000_000_000

	var asset Asset
	resp := postJSON(t, "/asset-config", map[string]interface{}{
		"symbol": fmt.Sprintf("RFD%d", runTag),
		"name":   "Refund Test Token",
	}, &asset)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var poll Poll
	resp = postJSON(t, "/poll", map[string]interface{}{
		"title":                 "Nobody bet on this",
		"asset_id":              asset.ID,
		"closes_at":             time.Now().Add(time.Hour),
		"house_commission_rate": 0.05,
		"options":               []string{"yes", "no"},
	}, &poll)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, fmt.Sprintf("/poll/%d/close", poll.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	drainSettlement(t, poll.ID)

	var settled Poll
	resp = getJSON(t, fmt.Sprintf("/poll/%d", poll.ID), &settled)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, settled.IsSettled)
	assert.Equal(t, int64(0), settled.HouseCommission)

	var log SettlementLog
	resp = getJSON(t, fmt.Sprintf("/settlement-log/%d", poll.ID), &log)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, log.IsRefund)
	assert.Equal(t, int64(0), log.Commission)
	assert.Equal(t, int64(0), log.TotalPayout)
	assert.Equal(t, 0, log.TotalWinners)
}
