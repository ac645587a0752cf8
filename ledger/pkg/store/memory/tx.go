package memory

import (
	"context"
	"slices"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
	"github.com/malbeclabs/racevault/ledger/pkg/events"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

type tx struct {
	st       *state
	readOnly bool

	configs         *overlay[vault.Config]
	receipts        *overlay[vault.PayoutReceipt]
	bonuses         *overlay[bonusRow]
	payoutRegs      *overlay[vault.PayoutRegistry]
	referrerRegs    *overlay[vault.ReferrerRegistry]
	globalPayouts   *overlay[vault.GlobalPayoutRegistry]
	globalReferrals *overlay[vault.GlobalReferralRegistry]
	accounts        *overlay[custody.TokenAccount]
	events          []events.Event
	bonusSeq        uint64
}

func newTx(st *state, readOnly bool) *tx {
	return &tx{
		st:              st,
		readOnly:        readOnly,
		configs:         newOverlay(st.configs),
		receipts:        newOverlay(st.receipts),
		bonuses:         newOverlay(st.bonuses),
		payoutRegs:      newOverlay(st.payoutRegs),
		referrerRegs:    newOverlay(st.referrerRegs),
		globalPayouts:   newOverlay(st.globalPayouts),
		globalReferrals: newOverlay(st.globalReferrals),
		accounts:        newOverlay(st.accounts),
		bonusSeq:        st.bonusSeq,
	}
}

func (t *tx) commit() {
	t.configs.commit()
	t.receipts.commit()
	t.bonuses.commit()
	t.payoutRegs.commit()
	t.referrerRegs.commit()
	t.globalPayouts.commit()
	t.globalReferrals.commit()
	t.accounts.commit()
	t.st.bonusSeq = t.bonusSeq
	for _, ev := range t.events {
		ev.Sequence = int64(len(t.st.outbox) + 1)
		t.st.outbox = append(t.st.outbox, outboxRow{event: ev})
	}
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func find[T any](o *overlay[T], addr solana.PublicKey) (*T, error) {
	v, ok := o.get(addr)
	if !ok {
		return nil, vault.ErrNotFound
	}
	return &v, nil
}

func (t *tx) Config(ctx context.Context, addr solana.PublicKey) (*vault.Config, error) {
	return find(t.configs, addr)
}

func (t *tx) InsertConfig(ctx context.Context, cfg *vault.Config) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.configs.get(cfg.Address); ok {
		return vault.ErrAlreadyExists
	}
	t.configs.put(cfg.Address, *cfg)
	return nil
}

func (t *tx) UpdateConfig(ctx context.Context, cfg *vault.Config) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.configs.get(cfg.Address); !ok {
		return vault.ErrNotFound
	}
	t.configs.put(cfg.Address, *cfg)
	return nil
}

func (t *tx) DeleteConfig(ctx context.Context, addr solana.PublicKey) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.configs.get(addr); !ok {
		return vault.ErrNotFound
	}
	t.configs.del(addr)
	return nil
}

func (t *tx) PayoutReceipt(ctx context.Context, addr solana.PublicKey) (*vault.PayoutReceipt, error) {
	return find(t.receipts, addr)
}

func (t *tx) InsertPayoutReceipt(ctx context.Context, receipt *vault.PayoutReceipt) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.receipts.get(receipt.Address); ok {
		return vault.ErrAlreadyExists
	}
	t.receipts.put(receipt.Address, *receipt)
	return nil
}

func (t *tx) ReferralBonus(ctx context.Context, addr solana.PublicKey) (*vault.ReferralBonusRecord, error) {
	row, ok := t.bonuses.get(addr)
	if !ok {
		return nil, vault.ErrNotFound
	}
	return &row.record, nil
}

func (t *tx) InsertReferralBonus(ctx context.Context, record *vault.ReferralBonusRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.bonuses.get(record.Address); ok {
		return vault.ErrAlreadyExists
	}
	t.bonusSeq++
	t.bonuses.put(record.Address, bonusRow{record: *record, seq: t.bonusSeq})
	return nil
}

func (t *tx) ReferralBonusesByReferrer(ctx context.Context, config, referrer solana.PublicKey, unclaimedOnly bool) ([]*vault.ReferralBonusRecord, error) {
	var rows []bonusRow
	t.bonuses.each(func(_ solana.PublicKey, row bonusRow) {
		rec := row.record
		if !rec.Config.Equals(config) || !rec.Referrer.Equals(referrer) {
			return
		}
		if unclaimedOnly && rec.Claimed {
			return
		}
		rows = append(rows, row)
	})
	slices.SortFunc(rows, func(a, b bonusRow) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	out := make([]*vault.ReferralBonusRecord, len(rows))
	for i := range rows {
		out[i] = &rows[i].record
	}
	return out, nil
}

func (t *tx) MarkReferralBonusesClaimed(ctx context.Context, addrs []solana.PublicKey, claimedAt int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, addr := range addrs {
		row, ok := t.bonuses.get(addr)
		if !ok {
			return vault.ErrNotFound
		}
		row.record.Claimed = true
		row.record.ClaimedAt = claimedAt
		t.bonuses.put(addr, row)
	}
	return nil
}

func (t *tx) PayoutRegistry(ctx context.Context, addr solana.PublicKey) (*vault.PayoutRegistry, error) {
	return find(t.payoutRegs, addr)
}

func (t *tx) PutPayoutRegistry(ctx context.Context, reg *vault.PayoutRegistry) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.payoutRegs.put(reg.Address, *reg)
	return nil
}

func (t *tx) ReferrerRegistry(ctx context.Context, addr solana.PublicKey) (*vault.ReferrerRegistry, error) {
	return find(t.referrerRegs, addr)
}

func (t *tx) PutReferrerRegistry(ctx context.Context, reg *vault.ReferrerRegistry) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.referrerRegs.put(reg.Address, *reg)
	return nil
}

func (t *tx) GlobalPayoutRegistry(ctx context.Context, addr solana.PublicKey) (*vault.GlobalPayoutRegistry, error) {
	return find(t.globalPayouts, addr)
}

func (t *tx) PutGlobalPayoutRegistry(ctx context.Context, reg *vault.GlobalPayoutRegistry) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.globalPayouts.put(reg.Address, *reg)
	return nil
}

func (t *tx) GlobalReferralRegistry(ctx context.Context, addr solana.PublicKey) (*vault.GlobalReferralRegistry, error) {
	return find(t.globalReferrals, addr)
}

func (t *tx) PutGlobalReferralRegistry(ctx context.Context, reg *vault.GlobalReferralRegistry) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.globalReferrals.put(reg.Address, *reg)
	return nil
}

func (t *tx) TokenAccountsForUpdate(ctx context.Context, addrs ...solana.PublicKey) ([]*custody.TokenAccount, error) {
	out := make([]*custody.TokenAccount, len(addrs))
	for i, addr := range addrs {
		if acct, ok := t.accounts.get(addr); ok {
			out[i] = &acct
		}
	}
	return out, nil
}

func (t *tx) TokenAccount(ctx context.Context, addr solana.PublicKey) (*custody.TokenAccount, error) {
	acct, ok := t.accounts.get(addr)
	if !ok {
		return nil, custody.ErrAccountNotFound
	}
	return &acct, nil
}

func (t *tx) PutTokenAccount(ctx context.Context, acct *custody.TokenAccount) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.accounts.put(acct.Address, *acct)
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, ev *events.Event) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.events = append(t.events, *ev)
	return nil
}
