// Package vault reads vault accounting state and the vault registry directly from the chain.
package vault

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const vaultABI = `[
{"inputs":[],"name":"pricePerShare","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"totalAssets","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"token","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const registryABI = `[
{"inputs":[],"name":"numTokens","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"index","type":"uint256"}],"name":"tokens","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"token","type":"address"}],"name":"latestVault","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

// contract binds an ABI to a deployed address for read-only calls.
type contract struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
}

func newContract(caller ethereum.ContractCaller, address common.Address, abiJSON string) (*contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	return &contract{caller: caller, address: address, abi: parsed}, nil
}

func (c *contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", method, c.address.Hex(), err)
	}

	out, err := c.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s from %s: %w", method, c.address.Hex(), err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s on %s: expected 1 output, got %d", method, c.address.Hex(), len(out))
	}
	return out, nil
}

func (c *contract) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s on %s: unexpected type %T", method, c.address.Hex(), out[0])
	}
	return v, nil
}

func (c *contract) callAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s on %s: unexpected type %T", method, c.address.Hex(), out[0])
	}
	return v, nil
}

func (c *contract) callUint8(ctx context.Context, method string) (uint8, error) {
	out, err := c.call(ctx, method)
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s on %s: unexpected type %T", method, c.address.Hex(), out[0])
	}
	return v, nil
}

func (c *contract) callString(ctx context.Context, method string) (string, error) {
	out, err := c.call(ctx, method)
	if err != nil {
		return "", err
	}
	v, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%s on %s: unexpected type %T", method, c.address.Hex(), out[0])
	}
	return v, nil
}
