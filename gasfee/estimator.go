package gasfee

import (
	"fmt"
	"math/big"

	"github.com/KyberNetwork/logger"
	lru "github.com/hashicorp/golang-lru"
)

// Confirmation-time targets, in seconds, for the seconds-to-priority-fee
// table.
var ConfirmationTargets = []int{15, 30, 45, 60}

// Trend is the direction the base fee is moving across the sampled window.
type Trend int

const (
	TrendFlat Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "flat"
	}
}

// FeeHistory is a window of recent per-block samples as returned by the
// ledger's fee-history endpoint.
type FeeHistory struct {
	// OldestBlock is the number of the first sampled block.
	OldestBlock *big.Int

	// BaseFeePerGas has one entry per sampled block plus one extra entry for
	// the next (pending) block.
	BaseFeePerGas []*big.Int

	// GasUsedRatio has one entry per sampled block.
	GasUsedRatio []float64

	// Reward holds, per sampled block, the priority-fee value at each of the
	// requested reward percentiles. May be empty when rewards were not
	// requested.
	Reward [][]*big.Int
}

// Suggestion is the estimator output for one chain head.
type Suggestion struct {
	// CurrentBaseFee is the base fee of the next (pending) block.
	CurrentBaseFee *big.Int

	// BaseFeeSuggestion is the trend-adjusted base fee to bid.
	BaseFeeSuggestion *big.Int

	// BaseFeeTrend signals whether base fees are rising or falling across
	// the window.
	BaseFeeTrend Trend

	// PriorityFeeSuggestions holds the normal/fast/urgent priority fees.
	PriorityFeeSuggestions Tiered

	// ConfirmationTimeByPriorityFee maps a target confirmation time in
	// seconds (15/30/45/60) to the priority fee expected to achieve it.
	ConfirmationTimeByPriorityFee map[int]*big.Int
}

// Config tunes the estimator.
type Config struct {
	// RewardPercentiles are the three percentiles requested from fee
	// history, mapping to the normal/fast/urgent tiers in order.
	RewardPercentiles []float64

	// MinPriorityFee floors every priority-fee suggestion, in wei.
	MinPriorityFee *big.Int

	// TrendThreshold is the relative base-fee move across the window that
	// counts as a trend rather than noise. 0.1 means 10%.
	TrendThreshold float64

	// CacheSize bounds the per-head suggestion cache.
	CacheSize int
}

// DefaultConfig returns the estimator defaults: 25/50/75 percentiles, a
// 1 gwei priority-fee floor and a 10% trend threshold.
func DefaultConfig() Config {
	return Config{
		RewardPercentiles: []float64{25, 50, 75},
		MinPriorityFee:    big.NewInt(1_000_000_000),
		TrendThreshold:    0.1,
		CacheSize:         128,
	}
}

// Estimator converts fee-history windows into Suggestions. Suggest is pure;
// the estimator only adds a small cache keyed by chain and head block so
// repeated UI quote requests against the same head don't recompute.
type Estimator struct {
	cfg   Config
	cache *lru.Cache
}

// NewEstimator creates an estimator with the given config.
func NewEstimator(cfg Config) (*Estimator, error) {
	if len(cfg.RewardPercentiles) != 3 {
		return nil, fmt.Errorf("exactly three reward percentiles are required, got %d", len(cfg.RewardPercentiles))
	}
	if cfg.MinPriorityFee == nil {
		cfg.MinPriorityFee = DefaultConfig().MinPriorityFee
	}
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = DefaultConfig().TrendThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Estimator{cfg: cfg, cache: cache}, nil
}

// RewardPercentiles returns the percentiles the estimator expects fee history
// to be fetched with.
func (e *Estimator) RewardPercentiles() []float64 {
	return e.cfg.RewardPercentiles
}

// Suggest computes a Suggestion for the given chain from a fee-history
// window. Results are cached per (chainID, head block).
func (e *Estimator) Suggest(chainID uint64, history *FeeHistory) (*Suggestion, error) {
	if history == nil || len(history.BaseFeePerGas) < 2 {
		return nil, ErrInsufficientFeeHistory
	}

	cacheKey := e.cacheKey(chainID, history)
	if cached, ok := e.cache.Get(cacheKey); ok {
		return cached.(*Suggestion), nil
	}

	baseFees := history.BaseFeePerGas
	currentBaseFee := new(big.Int).Set(baseFees[len(baseFees)-1])

	trend := e.baseFeeTrend(baseFees)
	suggestion := e.baseFeeSuggestion(baseFees, trend)
	priority := e.priorityFees(history.Reward)

	s := &Suggestion{
		CurrentBaseFee:         currentBaseFee,
		BaseFeeSuggestion:      suggestion,
		BaseFeeTrend:           trend,
		PriorityFeeSuggestions: priority,
		ConfirmationTimeByPriorityFee: map[int]*big.Int{
			15: priority.Urgent,
			30: priority.Fast,
			45: priority.Normal,
			60: e.cfg.MinPriorityFee,
		},
	}

	e.cache.Add(cacheKey, s)

	logger.WithFields(logger.Fields{
		"chain_id":            chainID,
		"current_base_fee":    currentBaseFee.String(),
		"base_fee_suggestion": suggestion.String(),
		"trend":               trend.String(),
	}).Debug("computed gas fee suggestion")

	return s, nil
}

func (e *Estimator) cacheKey(chainID uint64, history *FeeHistory) string {
	oldest := "0"
	if history.OldestBlock != nil {
		oldest = history.OldestBlock.String()
	}
	return fmt.Sprintf("%d/%s/%d", chainID, oldest, len(history.BaseFeePerGas))
}

// baseFeeTrend compares the average of the older half of the window against
// the newer half. A relative move beyond the threshold is a trend.
func (e *Estimator) baseFeeTrend(baseFees []*big.Int) Trend {
	half := len(baseFees) / 2
	if half == 0 {
		return TrendFlat
	}

	olderAvg := average(baseFees[:half])
	newerAvg := average(baseFees[half:])
	if olderAvg.Sign() == 0 {
		return TrendFlat
	}

	// |newer - older| / older, compared against the threshold in integer
	// arithmetic: 1000 * |diff| vs threshold * 1000 * older.
	diff := new(big.Int).Sub(newerAvg, olderAvg)
	scaled := new(big.Int).Abs(new(big.Int).Mul(diff, big.NewInt(1000)))
	bound := new(big.Int).Mul(olderAvg, big.NewInt(int64(e.cfg.TrendThreshold*1000)))

	if scaled.Cmp(bound) <= 0 {
		return TrendFlat
	}
	if diff.Sign() > 0 {
		return TrendUp
	}
	return TrendDown
}

// baseFeeSuggestion bids the maximum base fee of the recent window and, when
// the trend is rising, adds one worst-case block step (12.5%) of headroom so
// the bid survives the blocks between quoting and inclusion.
func (e *Estimator) baseFeeSuggestion(baseFees []*big.Int, trend Trend) *big.Int {
	maxRecent := new(big.Int)
	for _, fee := range baseFees {
		if fee != nil && fee.Cmp(maxRecent) > 0 {
			maxRecent.Set(fee)
		}
	}

	if trend == TrendUp {
		// maxRecent * 9 / 8
		headroom := new(big.Int).Mul(maxRecent, big.NewInt(9))
		return headroom.Div(headroom, big.NewInt(8))
	}
	return maxRecent
}

// priorityFees averages each percentile column across the window, skipping
// empty blocks, and floors every tier at MinPriorityFee.
func (e *Estimator) priorityFees(reward [][]*big.Int) Tiered {
	sums := [3]*big.Int{new(big.Int), new(big.Int), new(big.Int)}
	counts := [3]int64{}

	for _, blockRewards := range reward {
		for col := 0; col < 3 && col < len(blockRewards); col++ {
			if blockRewards[col] == nil || blockRewards[col].Sign() == 0 {
				continue
			}
			sums[col].Add(sums[col], blockRewards[col])
			counts[col]++
		}
	}

	tierFee := func(col int) *big.Int {
		if counts[col] == 0 {
			return new(big.Int).Set(e.cfg.MinPriorityFee)
		}
		avg := new(big.Int).Div(sums[col], big.NewInt(counts[col]))
		if avg.Cmp(e.cfg.MinPriorityFee) < 0 {
			return new(big.Int).Set(e.cfg.MinPriorityFee)
		}
		return avg
	}

	return Tiered{
		Normal: tierFee(0),
		Fast:   tierFee(1),
		Urgent: tierFee(2),
	}
}

// FeeParamsFor converts a suggestion into transaction fee parameters for the
// dynamic fee model: per-tier maxFeePerGas = baseFeeSuggestion + priority.
func (s *Suggestion) FeeParamsFor(gasLimit uint64) DynamicFee {
	maxFee := func(priority *big.Int) *big.Int {
		return new(big.Int).Add(s.BaseFeeSuggestion, priority)
	}
	return DynamicFee{
		MaxFeePerGas: Tiered{
			Normal: maxFee(s.PriorityFeeSuggestions.Normal),
			Fast:   maxFee(s.PriorityFeeSuggestions.Fast),
			Urgent: maxFee(s.PriorityFeeSuggestions.Urgent),
		},
		MaxPriorityFeePerGas: s.PriorityFeeSuggestions,
		Limit:                gasLimit,
	}
}

// Result converts fee params at a speed into the consumer-facing quote.
func Result(params FeeParams, speed Speed) GasFeeResult {
	if params == nil {
		return GasFeeResult{IsLoading: true}
	}
	cost := params.MaxCostWei(speed)
	if cost == nil {
		return GasFeeResult{IsLoading: true}
	}
	v := cost.String()
	return GasFeeResult{Value: &v, DisplayValue: &v}
}

func average(values []*big.Int) *big.Int {
	sum := new(big.Int)
	count := int64(0)
	for _, v := range values {
		if v == nil {
			continue
		}
		sum.Add(sum, v)
		count++
	}
	if count == 0 {
		return sum
	}
	return sum.Div(sum, big.NewInt(count))
}
