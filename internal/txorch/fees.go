package txorch

import (
	"context"
	"math/big"

	"github.com/abhishek7776/cryptowallet/internal/chainpool"
	"github.com/abhishek7776/cryptowallet/internal/wei"
	"github.com/ethereum/go-ethereum/core/types"
)

// FeeData is one fee quote. Dynamic distinguishes EIP-1559 networks from
// legacy gas-price ones; only the matching fields are set.
type FeeData struct {
	Dynamic bool
	BaseFee *big.Int
	TipCap  *big.Int
	FeeCap  *big.Int

	GasPrice *big.Int
}

// FeeTier is an advisory fee choice rendered for the caller.
type FeeTier struct {
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
	GasPrice             string `json:"gasPrice,omitempty"`
}

// FeeTiers offers slow/standard/fast at 80/100/120 percent of the quote.
// Purely advisory; correctness never depends on which tier the caller picks.
type FeeTiers struct {
	Slow     FeeTier `json:"slow"`
	Standard FeeTier `json:"standard"`
	Fast     FeeTier `json:"fast"`
}

// feeData quotes current fees through the retry path. EIP-1559 networks get
// feeCap = 2*baseFee + tip so the quote survives a few full blocks of
// base-fee growth; pre-1559 networks fall back to eth_gasPrice.
func (o *Orchestrator) feeData(ctx context.Context, network string) (*FeeData, error) {
	header, err := chainpool.WithRetry(ctx, o.pool, network, o.maxAttempts,
		func(ctx context.Context, c chainpool.Client) (*types.Header, error) {
			return c.HeaderByNumber(ctx, nil)
		})
	if err != nil {
		return nil, err
	}

	if header.BaseFee == nil {
		gasPrice, err := chainpool.WithRetry(ctx, o.pool, network, o.maxAttempts,
			func(ctx context.Context, c chainpool.Client) (*big.Int, error) {
				return c.SuggestGasPrice(ctx)
			})
		if err != nil {
			return nil, err
		}
		return &FeeData{Dynamic: false, GasPrice: gasPrice}, nil
	}

	tip, err := chainpool.WithRetry(ctx, o.pool, network, o.maxAttempts,
		func(ctx context.Context, c chainpool.Client) (*big.Int, error) {
			return c.SuggestGasTipCap(ctx)
		})
	if err != nil {
		return nil, err
	}

	feeCap := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)

	return &FeeData{
		Dynamic: true,
		BaseFee: new(big.Int).Set(header.BaseFee),
		TipCap:  tip,
		FeeCap:  feeCap,
	}, nil
}

func (fd *FeeData) tiers() FeeTiers {
	tier := func(pct int64) FeeTier {
		if fd.Dynamic {
			return FeeTier{
				MaxFeePerGas:         wei.FormatGwei(pctOf(fd.FeeCap, pct)),
				MaxPriorityFeePerGas: wei.FormatGwei(pctOf(fd.TipCap, pct)),
			}
		}
		return FeeTier{
			MaxFeePerGas: wei.FormatGwei(pctOf(fd.GasPrice, pct)),
			GasPrice:     wei.FormatGwei(pctOf(fd.GasPrice, pct)),
		}
	}
	return FeeTiers{Slow: tier(80), Standard: tier(100), Fast: tier(120)}
}

// bumped scales the quote for replace-by-fee: both the tip and the cap must
// rise or the pool rejects the replacement as underpriced.
func (fd *FeeData) bumped(pct int64) *FeeData {
	out := &FeeData{Dynamic: fd.Dynamic}
	if fd.Dynamic {
		out.BaseFee = fd.BaseFee
		out.TipCap = pctOf(fd.TipCap, pct)
		out.FeeCap = pctOf(fd.FeeCap, pct)
	} else {
		out.GasPrice = pctOf(fd.GasPrice, pct)
	}
	return out
}

func pctOf(x *big.Int, pct int64) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(x, big.NewInt(pct))
	return out.Div(out, big.NewInt(100))
}

func bufferedGas(gas uint64, pct int64) uint64 {
	return gas + gas*uint64(pct)/100
}
