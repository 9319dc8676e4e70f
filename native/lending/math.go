package lending

import "math/big"

const secondsPerYear = 31_536_000

var (
	basisPoints = big.NewInt(10_000)
	ray         = mustBigInt("1000000000000000000000000000") // 1e27 precision
	halfRay     = new(big.Int).Rsh(ray, 1)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, ray)
	return product
}

// rayPow raises a ray-scaled base to n by repeated squaring.
func rayPow(base *big.Int, n uint64) *big.Int {
	result := new(big.Int).Set(ray)
	b := new(big.Int).Set(base)
	for n > 0 {
		if n&1 == 1 {
			result = rayMul(result, b)
		}
		n >>= 1
		if n > 0 {
			b = rayMul(b, b)
		}
	}
	return result
}

// periodNumber returns how many whole accrual periods have elapsed since
// acceptance. In simple mode every second is a period.
func periodNumber(cfg InterestConfig, acceptedAt, now int64) uint64 {
	if now <= acceptedAt {
		return 0
	}
	elapsed := uint64(now - acceptedAt)
	if cfg.NumberOfPeriodsPerYear == 0 {
		return elapsed
	}
	periodLength := uint64(secondsPerYear / int64(cfg.NumberOfPeriodsPerYear))
	return elapsed / periodLength
}

// computeInterest brings state up to now. Compounding applies the per-period
// rate to the remaining principal plus unpaid interest; simple mode accrues on
// the remaining principal only.
func computeInterest(remainingPrincipal *big.Int, cfg InterestConfig, acceptedAt, now int64, state InterestState) InterestState {
	next := state.Clone()
	current := periodNumber(cfg, acceptedAt, now)
	if current <= next.LatestPeriodNumber {
		return next
	}
	elapsed := current - next.LatestPeriodNumber
	next.LatestPeriodNumber = current
	if cfg.InterestRateBps == 0 || remainingPrincipal == nil || remainingPrincipal.Sign() <= 0 {
		return next
	}
	rate := big.NewInt(int64(cfg.InterestRateBps))

	if cfg.NumberOfPeriodsPerYear == 0 {
		interest := new(big.Int).Mul(remainingPrincipal, rate)
		interest.Mul(interest, new(big.Int).SetUint64(elapsed))
		interest.Quo(interest, new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear)))
		next.AccruedInterest.Add(next.AccruedInterest, interest)
		return next
	}

	perPeriod := new(big.Int).Mul(rate, ray)
	perPeriod.Quo(perPeriod, new(big.Int).Mul(basisPoints, big.NewInt(int64(cfg.NumberOfPeriodsPerYear))))
	factor := rayPow(new(big.Int).Add(ray, perPeriod), elapsed)

	balance := new(big.Int).Add(remainingPrincipal, next.AccruedInterest)
	grown := new(big.Int).Mul(balance, factor)
	grown.Quo(grown, ray)
	if grown.Cmp(balance) > 0 {
		next.AccruedInterest.Add(next.AccruedInterest, grown.Sub(grown, balance))
	}
	return next
}
