package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"x402-arcade/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddToPrizePoolAccumulates(t *testing.T) {
	svc := NewPrizePoolService(newTestDB(t))

	amounts := []float64{0.10, 0.25, 0.10, 0.50}
	var want float64
	for _, a := range amounts {
		contribution, err := svc.AddToPrizePool(models.GameSnake, a, 75)
		require.NoError(t, err)
		assert.InDelta(t, a*0.75, contribution, 1e-9)
		want += a * 0.75
	}

	daily, err := svc.GetCurrentPool(models.GameSnake, models.PeriodDaily)
	require.NoError(t, err)
	require.NotNil(t, daily)
	assert.InDelta(t, want, daily.TotalAmountUsdc, 1e-9)
	assert.Equal(t, int64(len(amounts)), daily.TotalGames)
	assert.Equal(t, models.PoolStatusOpen, daily.Status)

	// The weekly bucket accumulates independently but identically.
	weekly, err := svc.GetCurrentPool(models.GameSnake, models.PeriodWeekly)
	require.NoError(t, err)
	require.NotNil(t, weekly)
	assert.InDelta(t, want, weekly.TotalAmountUsdc, 1e-9)
}

func TestAddToPrizePoolConcurrent(t *testing.T) {
	svc := NewPrizePoolService(newTestDB(t))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddToPrizePool(models.GameTetris, 0.25, 75)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pool, err := svc.GetCurrentPool(models.GameTetris, models.PeriodDaily)
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.InDelta(t, n*0.25*0.75, pool.TotalAmountUsdc, 1e-6, "no contribution may be lost under interleaving")
	assert.Equal(t, int64(n), pool.TotalGames)
}

func TestPoolsAreScopedPerGame(t *testing.T) {
	svc := NewPrizePoolService(newTestDB(t))

	_, err := svc.AddToPrizePool(models.GameSnake, 0.10, 75)
	require.NoError(t, err)

	pool, err := svc.GetCurrentPool(models.GamePong, models.PeriodDaily)
	require.NoError(t, err)
	assert.Nil(t, pool, "absence of a pool is not an error")
}

func TestInvalidSharePercent(t *testing.T) {
	svc := NewPrizePoolService(newTestDB(t))

	_, err := svc.AddToPrizePool(models.GameSnake, 0.10, -1)
	assert.Error(t, err)
	_, err = svc.AddToPrizePool(models.GameSnake, 0.10, 101)
	assert.Error(t, err)
}

func TestPoolHistoryOrderAndPaging(t *testing.T) {
	svc := NewPrizePoolService(newTestDB(t))

	// Seed three past daily pools directly.
	for i := 1; i <= 3; i++ {
		day := time.Now().UTC().AddDate(0, 0, -i)
		require.NoError(t, svc.DB.Create(&models.PrizePool{
			ID:              fmt.Sprintf("pool-%d", i),
			GameType:        string(models.GameSnake),
			PeriodType:      string(models.PeriodDaily),
			PeriodKey:       models.PeriodKeyFor(models.PeriodDaily, day),
			TotalAmountUsdc: float64(i),
			Status:          models.PoolStatusFinalized,
		}).Error)
	}
	_, err := svc.AddToPrizePool(models.GameSnake, 0.10, 75)
	require.NoError(t, err)

	pools, err := svc.GetPoolHistory(models.GameSnake, models.PeriodDaily, 10, 0)
	require.NoError(t, err)
	require.Len(t, pools, 4)
	for i := 1; i < len(pools); i++ {
		assert.GreaterOrEqual(t, pools[i-1].PeriodKey, pools[i].PeriodKey, "most recent period first")
	}

	page, err := svc.GetPoolHistory(models.GameSnake, models.PeriodDaily, 2, 1)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestFinalizeEndedPools(t *testing.T) {
	svc := NewPrizePoolService(newTestDB(t))

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, svc.DB.Create(&models.PrizePool{
		ID:              "old-pool",
		GameType:        string(models.GameSnake),
		PeriodType:      string(models.PeriodDaily),
		PeriodKey:       models.PeriodKeyFor(models.PeriodDaily, yesterday),
		TotalAmountUsdc: 5,
		Status:          models.PoolStatusOpen,
	}).Error)
	_, err := svc.AddToPrizePool(models.GameSnake, 0.10, 75)
	require.NoError(t, err)

	n, err := svc.FinalizeEndedPools()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	current, err := svc.GetCurrentPool(models.GameSnake, models.PeriodDaily)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, models.PoolStatusOpen, current.Status, "the live period must stay open")

	var old models.PrizePool
	require.NoError(t, svc.DB.First(&old, "id = ?", "old-pool").Error)
	assert.Equal(t, models.PoolStatusFinalized, old.Status)
}

func TestPeriodKeys(t *testing.T) {
	at := time.Date(2026, 8, 26, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-26", models.PeriodKeyFor(models.PeriodDaily, at))
	assert.Equal(t, "2026-W35", models.PeriodKeyFor(models.PeriodWeekly, at))

	// Daily keys roll at UTC midnight regardless of local zone.
	late := time.Date(2026, 8, 26, 23, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))
	assert.Equal(t, "2026-08-26", models.PeriodKeyFor(models.PeriodDaily, late))
}
