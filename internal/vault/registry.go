package vault

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Registry enumerates the vaults a protocol-wide pass covers.
type Registry interface {
	Vaults(ctx context.Context) ([]common.Address, error)
}

// StaticRegistry is a fixed, configured vault list.
type StaticRegistry []common.Address

func (r StaticRegistry) Vaults(context.Context) ([]common.Address, error) {
	out := make([]common.Address, len(r))
	copy(out, r)
	return out, nil
}

// ChainRegistry reads the on-chain registry: one latest vault per registered token.
type ChainRegistry struct {
	c *contract
}

// NewChainRegistry binds to the registry contract at address.
func NewChainRegistry(caller ethereum.ContractCaller, address common.Address) (*ChainRegistry, error) {
	c, err := newContract(caller, address, registryABI)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", address.Hex(), err)
	}
	return &ChainRegistry{c: c}, nil
}

// Vaults returns latestVault(token) for every registered token, in registry order.
func (r *ChainRegistry) Vaults(ctx context.Context) ([]common.Address, error) {
	n, err := r.c.callBig(ctx, "numTokens")
	if err != nil {
		return nil, err
	}
	if !n.IsInt64() {
		return nil, fmt.Errorf("registry %s: numTokens %s out of range", r.c.address.Hex(), n)
	}

	vaults := make([]common.Address, 0, n.Int64())
	seen := make(map[common.Address]bool, n.Int64())
	for i := range n.Int64() {
		token, err := r.c.callAddress(ctx, "tokens", big.NewInt(i))
		if err != nil {
			return nil, err
		}
		v, err := r.c.callAddress(ctx, "latestVault", token)
		if err != nil {
			return nil, err
		}
		if v == (common.Address{}) || seen[v] {
			continue
		}
		seen[v] = true
		vaults = append(vaults, v)
	}
	return vaults, nil
}
