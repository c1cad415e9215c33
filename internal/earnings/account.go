package earnings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
	"github.com/mtlprog/vaultstat/internal/oracle"
)

// vaultFlows are an account's summed ledger entries in one vault.
type vaultFlows struct {
	deposits       fixedpoint.Amount
	withdrawals    fixedpoint.Amount
	sharesSent     fixedpoint.Amount
	sharesReceived fixedpoint.Amount
}

func sumByVault(flows map[common.Address]*vaultFlows, records []domain.InteractionRecord, field func(*vaultFlows) *fixedpoint.Amount) {
	for _, r := range records {
		f, ok := flows[r.VaultID]
		if !ok {
			slog.Warn("interaction for vault without position, ignoring", "kind", r.Kind, "vault", r.VaultID.Hex())
			continue
		}
		dst := field(f)
		*dst = dst.Add(r.TokenAmount)
	}
}

// accountVaultEarned computes
// (current + withdrawals + sharesSent) − (deposits + sharesReceived)
// and fails with domain.ErrEarningsUnderflow unless the positive side strictly exceeds the negative side.
func accountVaultEarned(current fixedpoint.Amount, f vaultFlows) (fixedpoint.Amount, error) {
	positive := current.Add(f.withdrawals).Add(f.sharesSent)
	negative := f.deposits.Add(f.sharesReceived)
	if positive.Cmp(negative) <= 0 {
		return fixedpoint.Amount{}, fmt.Errorf("%w: positive %s, negative %s", domain.ErrEarningsUnderflow, positive, negative)
	}
	return positive.Sub(negative), nil
}

// AccountEarnings computes per-vault earnings of one account in position order.
// Any vault failure fails the whole account with a *domain.VaultError.
func (c *Calculator) AccountEarnings(ctx context.Context, account common.Address) (domain.AccountEarningsReport, error) {
	return c.accountEarnings(ctx, oracle.NewMemo(c.prices), account)
}

func (c *Calculator) accountEarnings(ctx context.Context, prices PriceOracle, account common.Address) (domain.AccountEarningsReport, error) {
	in, err := c.interactions.QueryAccountInteractions(ctx, account)
	if err != nil {
		return domain.AccountEarningsReport{}, fmt.Errorf("account %s: %w", account.Hex(), err)
	}

	flows := make(map[common.Address]*vaultFlows, len(in.Positions))
	for _, p := range in.Positions {
		d := uint(p.TokenDecimals)
		flows[p.VaultID] = &vaultFlows{
			deposits:       fixedpoint.Zero(d),
			withdrawals:    fixedpoint.Zero(d),
			sharesSent:     fixedpoint.Zero(d),
			sharesReceived: fixedpoint.Zero(d),
		}
	}
	sumByVault(flows, in.Deposits, func(f *vaultFlows) *fixedpoint.Amount { return &f.deposits })
	sumByVault(flows, in.Withdrawals, func(f *vaultFlows) *fixedpoint.Amount { return &f.withdrawals })
	sumByVault(flows, in.SharesSent, func(f *vaultFlows) *fixedpoint.Amount { return &f.sharesSent })
	sumByVault(flows, in.SharesReceived, func(f *vaultFlows) *fixedpoint.Amount { return &f.sharesReceived })

	perVault := make([]domain.EarningsReport, len(in.Positions))
	for i, p := range in.Positions {
		pos := domain.NewVaultPosition(account, p)
		earned, err := accountVaultEarned(pos.TokenAmount, *flows[p.VaultID])
		if err != nil {
			return domain.AccountEarningsReport{}, &domain.VaultError{Account: account, Vault: p.VaultID, Err: err}
		}
		perVault[i] = domain.EarningsReport{AssetID: p.VaultID, TokenID: p.TokenID, AmountEarned: earned}
	}

	// One price lookup per distinct token, issued concurrently. The prefetch
	// only warms the memo; errors surface from the per-vault lookups below.
	tokens := lo.Uniq(lo.Map(in.Positions, func(p domain.PositionSource, _ int) common.Address { return p.TokenID }))
	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)
	for _, t := range tokens {
		g.Go(func() error {
			_, err := prices.PriceUsd(ctx, t)
			return err
		})
	}
	_ = g.Wait()

	for i := range perVault {
		price, err := prices.PriceUsd(ctx, perVault[i].TokenID)
		if err != nil {
			return domain.AccountEarningsReport{}, &domain.VaultError{Account: account, Vault: perVault[i].AssetID, Err: err}
		}
		perVault[i].AmountEarnedUsd = toUsd(perVault[i].AmountEarned, price)
	}

	return domain.AccountEarningsReport{
		AccountID:      account,
		PerVault:       perVault,
		TotalEarnedUsd: sumUsd(perVault),
	}, nil
}

// AccountsEarnings computes earnings for several accounts. Failed accounts are
// reported as faults unless the calculator runs in all-or-nothing mode.
// Price lookups are shared across the batch. Results follow input order.
func (c *Calculator) AccountsEarnings(ctx context.Context, accounts []common.Address) (domain.AccountsEarningsReport, error) {
	prices := oracle.NewMemo(c.prices)
	reports := make([]domain.AccountEarningsReport, len(accounts))

	errs, err := c.forEach(ctx, len(accounts), func(ctx context.Context, i int) error {
		r, err := c.accountEarnings(ctx, prices, accounts[i])
		if err != nil {
			return err
		}
		reports[i] = r
		return nil
	})
	if err != nil {
		return domain.AccountsEarningsReport{}, err
	}

	result := domain.AccountsEarningsReport{
		Accounts: []domain.AccountEarningsReport{},
		Faults:   []domain.Fault{},
	}
	for i, r := range reports {
		if errs[i] != nil {
			slog.Warn("account earnings failed", "account", accounts[i].Hex(), "error", errs[i])
			result.Faults = append(result.Faults, domain.NewFault(accounts[i].Hex(), errs[i]))
			continue
		}
		result.Accounts = append(result.Accounts, r)
	}
	return result, nil
}
