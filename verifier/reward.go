// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package verifier

import (
	"math"

	"github.com/a2afabric/fabric/errs"
)

// RewardFormula maps a weighted score to a payout multiplier.
type RewardFormula string

const (
	RewardLinear      RewardFormula = "linear"      // multiplier = score/100
	RewardExponential RewardFormula = "exponential" // multiplier = (score/100)^2
	RewardTiered      RewardFormula = "tiered"      // step function by quality tier
)

// Reward computes the payout for a base amount given the weighted score.
// High scores earn a bonus on top: 20% of base at >=95, 10% at >=90.
func Reward(formula RewardFormula, base uint64, score float64) (uint64, error) {
	if score < 0 || score > 100 {
		return 0, errs.Errorf(errs.InvalidArgument, "score %v out of range", score)
	}

	var multiplier float64
	switch formula {
	case RewardLinear:
		multiplier = score / 100
	case RewardExponential:
		multiplier = (score / 100) * (score / 100)
	case RewardTiered:
		switch {
		case score >= 90:
			multiplier = 1.0
		case score >= 75:
			multiplier = 0.85
		case score >= 60:
			multiplier = 0.6
		default:
			multiplier = 0
		}
	default:
		return 0, errs.Errorf(errs.InvalidArgument, "unknown reward formula %q", formula)
	}

	final := float64(base) * multiplier
	switch {
	case score >= 95:
		final += float64(base) * 0.20
	case score >= 90:
		final += float64(base) * 0.10
	}
	return uint64(math.Round(final)), nil
}
