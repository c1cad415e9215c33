package subgraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

type vaultRefJSON struct {
	ID string `json:"id"`
}

type interactionJSON struct {
	Vault       vaultRefJSON `json:"vault"`
	TokenAmount string       `json:"tokenAmount"`
}

type positionJSON struct {
	BalanceShares string `json:"balanceShares"`
	Vault         struct {
		ID           string      `json:"id"`
		Token        tokenJSON   `json:"token"`
		LatestUpdate *updateJSON `json:"latestUpdate"`
	} `json:"vault"`
}

type accountJSON struct {
	ID             string            `json:"id"`
	VaultPositions []positionJSON    `json:"vaultPositions"`
	Deposits       []interactionJSON `json:"deposits"`
	Withdrawals    []interactionJSON `json:"withdrawals"`
	SharesSent     []interactionJSON `json:"sharesSent"`
	SharesReceived []interactionJSON `json:"sharesReceived"`
}

// QueryAccountInteractions returns the full ledger of an account. An account the
// indexer has never seen yields empty interactions.
func (c *Client) QueryAccountInteractions(ctx context.Context, account common.Address) (domain.AccountInteractions, error) {
	var data struct {
		Account *accountJSON `json:"account"`
	}
	if err := c.query(ctx, accountQuery, map[string]any{"id": entityID(account)}, &data); err != nil {
		return domain.AccountInteractions{}, fmt.Errorf("querying account %s: %w", account.Hex(), err)
	}

	result := domain.AccountInteractions{AccountID: account}
	if data.Account == nil {
		return result, nil
	}

	// Interaction amounts are in the vault token's decimals, known only from positions.
	decimalsByVault := make(map[string]uint8, len(data.Account.VaultPositions))
	for _, p := range data.Account.VaultPositions {
		src, err := p.source()
		if err != nil {
			return domain.AccountInteractions{}, fmt.Errorf("account %s: %w", account.Hex(), err)
		}
		decimalsByVault[p.Vault.ID] = src.TokenDecimals
		result.Positions = append(result.Positions, src)
	}

	var err error
	if result.Deposits, err = records(domain.InteractionDeposit, data.Account.Deposits, decimalsByVault); err != nil {
		return domain.AccountInteractions{}, fmt.Errorf("account %s: %w", account.Hex(), err)
	}
	if result.Withdrawals, err = records(domain.InteractionWithdrawal, data.Account.Withdrawals, decimalsByVault); err != nil {
		return domain.AccountInteractions{}, fmt.Errorf("account %s: %w", account.Hex(), err)
	}
	if result.SharesSent, err = records(domain.InteractionSharesSent, data.Account.SharesSent, decimalsByVault); err != nil {
		return domain.AccountInteractions{}, fmt.Errorf("account %s: %w", account.Hex(), err)
	}
	if result.SharesReceived, err = records(domain.InteractionSharesReceived, data.Account.SharesReceived, decimalsByVault); err != nil {
		return domain.AccountInteractions{}, fmt.Errorf("account %s: %w", account.Hex(), err)
	}

	return result, nil
}

func (p positionJSON) source() (domain.PositionSource, error) {
	decimals, err := tokenDecimals(p.Vault.Token.Decimals)
	if err != nil {
		return domain.PositionSource{}, fmt.Errorf("vault %s: %w", p.Vault.ID, err)
	}
	d := uint(decimals)

	shares, err := fixedpoint.ParseRaw(p.BalanceShares, d)
	if err != nil {
		return domain.PositionSource{}, fmt.Errorf("vault %s balanceShares: %w", p.Vault.ID, err)
	}
	pps := fixedpoint.Zero(d)
	if p.Vault.LatestUpdate != nil {
		if pps, err = fixedpoint.ParseRaw(p.Vault.LatestUpdate.PricePerShare, d); err != nil {
			return domain.PositionSource{}, fmt.Errorf("vault %s pricePerShare: %w", p.Vault.ID, err)
		}
	}

	return domain.PositionSource{
		VaultID:       common.HexToAddress(p.Vault.ID),
		TokenID:       common.HexToAddress(p.Vault.Token.ID),
		TokenDecimals: decimals,
		BalanceShares: shares,
		PricePerShare: pps,
	}, nil
}

func records(kind domain.InteractionKind, in []interactionJSON, decimalsByVault map[string]uint8) ([]domain.InteractionRecord, error) {
	out := make([]domain.InteractionRecord, 0, len(in))
	for _, r := range in {
		decimals, ok := decimalsByVault[r.Vault.ID]
		if !ok {
			slog.Warn("interaction for vault without position, skipping", "kind", kind, "vault", r.Vault.ID)
			continue
		}
		amount, err := fixedpoint.ParseRaw(r.TokenAmount, uint(decimals))
		if err != nil {
			return nil, fmt.Errorf("%s in vault %s: %w", kind, r.Vault.ID, err)
		}
		out = append(out, domain.InteractionRecord{
			Kind:        kind,
			VaultID:     common.HexToAddress(r.Vault.ID),
			TokenAmount: amount,
		})
	}
	return out, nil
}
