package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

const lensOracleABI = `[{"inputs":[{"name":"tokenAddress","type":"address"}],"name":"getPriceUsdcRecommended","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

const methodPriceUsdc = "getPriceUsdcRecommended"

// LensOracle reads USDC-scale prices from the on-chain pricing oracle contract.
type LensOracle struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
}

// NewLensOracle creates an oracle bound to the contract at address.
func NewLensOracle(caller ethereum.ContractCaller, address common.Address) (*LensOracle, error) {
	parsed, err := abi.JSON(strings.NewReader(lensOracleABI))
	if err != nil {
		return nil, fmt.Errorf("parsing oracle ABI: %w", err)
	}
	return &LensOracle{caller: caller, address: address, abi: parsed}, nil
}

// PriceUsd calls getPriceUsdcRecommended(token). A zero result means the oracle cannot price the token.
func (o *LensOracle) PriceUsd(ctx context.Context, token common.Address) (fixedpoint.Amount, error) {
	data, err := o.abi.Pack(methodPriceUsdc, token)
	if err != nil {
		return fixedpoint.Amount{}, fmt.Errorf("packing %s call: %w", methodPriceUsdc, err)
	}

	result, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &o.address, Data: data}, nil)
	if err != nil {
		return fixedpoint.Amount{}, fmt.Errorf("%w: token %s: %w", domain.ErrPriceUnavailable, token.Hex(), err)
	}

	out, err := o.abi.Unpack(methodPriceUsdc, result)
	if err != nil || len(out) != 1 {
		return fixedpoint.Amount{}, fmt.Errorf("%w: token %s: unpacking oracle result: %v", domain.ErrPriceUnavailable, token.Hex(), err)
	}
	price, ok := out[0].(*big.Int)
	if !ok || price.Sign() <= 0 {
		return fixedpoint.Amount{}, fmt.Errorf("%w: token %s: oracle returned no price", domain.ErrPriceUnavailable, token.Hex())
	}

	return fixedpoint.FromRaw(price, fixedpoint.USDDecimals), nil
}
