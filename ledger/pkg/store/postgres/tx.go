package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"

	"github.com/malbeclabs/racevault/ledger/pkg/custody"
	"github.com/malbeclabs/racevault/ledger/pkg/events"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

type tx struct {
	tx       pgx.Tx
	readOnly bool
}

// lock is appended to every single-row read of a write transaction.
func (t *tx) lock() string {
	if t.readOnly {
		return ""
	}
	return " FOR UPDATE"
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return vault.ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func (t *tx) exec(ctx context.Context, what, sql string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return vault.ErrAlreadyExists
		}
		return fmt.Errorf("failed to write %s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return vault.ErrNotFound
	}
	return nil
}

func (t *tx) Config(ctx context.Context, addr solana.PublicKey) (*vault.Config, error) {
	var cfg vault.Config
	err := t.tx.QueryRow(ctx, `
		SELECT address, authority, mint, vault_signer, vault_signer_bump, vault_token, paused, created_at, updated_at
		FROM vault_configs WHERE address = $1`+t.lock(), addr.String()).Scan(
		key(&cfg.Address), key(&cfg.Authority), key(&cfg.Mint), key(&cfg.VaultSigner),
		&cfg.VaultSignerBump, key(&cfg.VaultToken), &cfg.Paused, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "config")
	}
	return &cfg, nil
}

func (t *tx) InsertConfig(ctx context.Context, cfg *vault.Config) error {
	return t.exec(ctx, "config", `
		INSERT INTO vault_configs (address, authority, mint, vault_signer, vault_signer_bump, vault_token, paused, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cfg.Address.String(), cfg.Authority.String(), cfg.Mint.String(), cfg.VaultSigner.String(),
		int16(cfg.VaultSignerBump), cfg.VaultToken.String(), cfg.Paused, cfg.CreatedAt, cfg.UpdatedAt,
	)
}

func (t *tx) UpdateConfig(ctx context.Context, cfg *vault.Config) error {
	return t.exec(ctx, "config", `
		UPDATE vault_configs SET authority = $2, paused = $3, updated_at = $4 WHERE address = $1`,
		cfg.Address.String(), cfg.Authority.String(), cfg.Paused, cfg.UpdatedAt,
	)
}

func (t *tx) DeleteConfig(ctx context.Context, addr solana.PublicKey) error {
	return t.exec(ctx, "config", `DELETE FROM vault_configs WHERE address = $1`, addr.String())
}

func (t *tx) PayoutReceipt(ctx context.Context, addr solana.PublicKey) (*vault.PayoutReceipt, error) {
	var r vault.PayoutReceipt
	err := t.tx.QueryRow(ctx, `
		SELECT address, config, event_id_hash, recipient, points, amount, registered_at
		FROM payout_receipts WHERE address = $1`, addr.String()).Scan(
		key(&r.Address), key(&r.Config), &hashColumn{dst: &r.EventIDHash}, key(&r.Recipient),
		u64(&r.Points), u64(&r.Amount), &r.Timestamp,
	)
	if err != nil {
		return nil, notFound(err, "payout receipt")
	}
	return &r, nil
}

func (t *tx) InsertPayoutReceipt(ctx context.Context, r *vault.PayoutReceipt) error {
	return t.exec(ctx, "payout receipt", `
		INSERT INTO payout_receipts (address, config, event_id_hash, recipient, points, amount, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.Address.String(), r.Config.String(), r.EventIDHash.String(), r.Recipient.String(),
		numeric(r.Points), numeric(r.Amount), r.Timestamp,
	)
}

const bonusColumns = `address, config, event_id, referrer, referee, amount, claimed, registered_at, COALESCE(claimed_at, 0)`

func scanBonus(row pgx.Row) (*vault.ReferralBonusRecord, error) {
	var r vault.ReferralBonusRecord
	err := row.Scan(
		key(&r.Address), key(&r.Config), &r.EventID, key(&r.Referrer), key(&r.Referee),
		u64(&r.Amount), &r.Claimed, &r.Timestamp, &r.ClaimedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *tx) ReferralBonus(ctx context.Context, addr solana.PublicKey) (*vault.ReferralBonusRecord, error) {
	r, err := scanBonus(t.tx.QueryRow(ctx, `SELECT `+bonusColumns+` FROM referral_bonuses WHERE address = $1`, addr.String()))
	if err != nil {
		return nil, notFound(err, "referral bonus")
	}
	return r, nil
}

func (t *tx) InsertReferralBonus(ctx context.Context, r *vault.ReferralBonusRecord) error {
	var claimedAt *int64
	if r.Claimed {
		claimedAt = &r.ClaimedAt
	}
	return t.exec(ctx, "referral bonus", `
		INSERT INTO referral_bonuses (address, config, event_id, referrer, referee, amount, claimed, registered_at, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.Address.String(), r.Config.String(), r.EventID, r.Referrer.String(), r.Referee.String(),
		numeric(r.Amount), r.Claimed, r.Timestamp, claimedAt,
	)
}

func (t *tx) ReferralBonusesByReferrer(ctx context.Context, config, referrer solana.PublicKey, unclaimedOnly bool) ([]*vault.ReferralBonusRecord, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + bonusColumns + ` FROM referral_bonuses WHERE config = $1 AND referrer = $2`)
	if unclaimedOnly {
		sb.WriteString(` AND NOT claimed`)
	}
	sb.WriteString(` ORDER BY seq`)
	sb.WriteString(t.lock())

	rows, err := t.tx.Query(ctx, sb.String(), config.String(), referrer.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query referral bonuses: %w", err)
	}
	defer rows.Close()

	var out []*vault.ReferralBonusRecord
	for rows.Next() {
		r, err := scanBonus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral bonus: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read referral bonuses: %w", err)
	}
	return out, nil
}

func (t *tx) MarkReferralBonusesClaimed(ctx context.Context, addrs []solana.PublicKey, claimedAt int64) error {
	if len(addrs) == 0 {
		return nil
	}
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = a.String()
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE referral_bonuses SET claimed = TRUE, claimed_at = $2
		WHERE address = ANY($1) AND NOT claimed`, keys, claimedAt)
	if err != nil {
		return fmt.Errorf("failed to mark referral bonuses claimed: %w", err)
	}
	if tag.RowsAffected() != int64(len(addrs)) {
		return fmt.Errorf("%w: marked %d of %d referral bonuses claimed", vault.ErrInvariant, tag.RowsAffected(), len(addrs))
	}
	return nil
}

func (t *tx) PayoutRegistry(ctx context.Context, addr solana.PublicKey) (*vault.PayoutRegistry, error) {
	var r vault.PayoutRegistry
	err := t.tx.QueryRow(ctx, `
		SELECT address, config, recipient, total_pending, total_claimed, payout_count, last_updated
		FROM payout_registries WHERE address = $1`+t.lock(), addr.String()).Scan(
		key(&r.Address), key(&r.Config), key(&r.Recipient),
		u64(&r.TotalPending), u64(&r.TotalClaimed), &r.PayoutCount, &r.LastUpdated,
	)
	if err != nil {
		return nil, notFound(err, "payout registry")
	}
	return &r, nil
}

func (t *tx) PutPayoutRegistry(ctx context.Context, r *vault.PayoutRegistry) error {
	return t.exec(ctx, "payout registry", `
		INSERT INTO payout_registries (address, config, recipient, total_pending, total_claimed, payout_count, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			total_pending = EXCLUDED.total_pending,
			total_claimed = EXCLUDED.total_claimed,
			payout_count = EXCLUDED.payout_count,
			last_updated = EXCLUDED.last_updated`,
		r.Address.String(), r.Config.String(), r.Recipient.String(),
		numeric(r.TotalPending), numeric(r.TotalClaimed), r.PayoutCount, r.LastUpdated,
	)
}

func (t *tx) ReferrerRegistry(ctx context.Context, addr solana.PublicKey) (*vault.ReferrerRegistry, error) {
	var r vault.ReferrerRegistry
	err := t.tx.QueryRow(ctx, `
		SELECT address, config, referrer, total_pending, total_claimed, bonus_count, last_updated
		FROM referrer_registries WHERE address = $1`+t.lock(), addr.String()).Scan(
		key(&r.Address), key(&r.Config), key(&r.Referrer),
		u64(&r.TotalPending), u64(&r.TotalClaimed), &r.BonusCount, &r.LastUpdated,
	)
	if err != nil {
		return nil, notFound(err, "referrer registry")
	}
	return &r, nil
}

func (t *tx) PutReferrerRegistry(ctx context.Context, r *vault.ReferrerRegistry) error {
	return t.exec(ctx, "referrer registry", `
		INSERT INTO referrer_registries (address, config, referrer, total_pending, total_claimed, bonus_count, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			total_pending = EXCLUDED.total_pending,
			total_claimed = EXCLUDED.total_claimed,
			bonus_count = EXCLUDED.bonus_count,
			last_updated = EXCLUDED.last_updated`,
		r.Address.String(), r.Config.String(), r.Referrer.String(),
		numeric(r.TotalPending), numeric(r.TotalClaimed), r.BonusCount, r.LastUpdated,
	)
}

func (t *tx) GlobalPayoutRegistry(ctx context.Context, addr solana.PublicKey) (*vault.GlobalPayoutRegistry, error) {
	var r vault.GlobalPayoutRegistry
	err := t.tx.QueryRow(ctx, `
		SELECT address, config, total_pending, total_claimed, total_payout_count, total_recipient_count, last_updated
		FROM global_payout_registries WHERE address = $1`+t.lock(), addr.String()).Scan(
		key(&r.Address), key(&r.Config), u64(&r.TotalPending), u64(&r.TotalClaimed),
		&r.TotalPayoutCount, &r.TotalRecipientCount, &r.LastUpdated,
	)
	if err != nil {
		return nil, notFound(err, "global payout registry")
	}
	return &r, nil
}

func (t *tx) PutGlobalPayoutRegistry(ctx context.Context, r *vault.GlobalPayoutRegistry) error {
	return t.exec(ctx, "global payout registry", `
		INSERT INTO global_payout_registries (address, config, total_pending, total_claimed, total_payout_count, total_recipient_count, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			total_pending = EXCLUDED.total_pending,
			total_claimed = EXCLUDED.total_claimed,
			total_payout_count = EXCLUDED.total_payout_count,
			total_recipient_count = EXCLUDED.total_recipient_count,
			last_updated = EXCLUDED.last_updated`,
		r.Address.String(), r.Config.String(), numeric(r.TotalPending), numeric(r.TotalClaimed),
		r.TotalPayoutCount, r.TotalRecipientCount, r.LastUpdated,
	)
}

func (t *tx) GlobalReferralRegistry(ctx context.Context, addr solana.PublicKey) (*vault.GlobalReferralRegistry, error) {
	var r vault.GlobalReferralRegistry
	err := t.tx.QueryRow(ctx, `
		SELECT address, config, total_pending, total_claimed, total_bonus_count, total_referrer_count, last_updated
		FROM global_referral_registries WHERE address = $1`+t.lock(), addr.String()).Scan(
		key(&r.Address), key(&r.Config), u64(&r.TotalPending), u64(&r.TotalClaimed),
		&r.TotalBonusCount, &r.TotalReferrerCount, &r.LastUpdated,
	)
	if err != nil {
		return nil, notFound(err, "global referral registry")
	}
	return &r, nil
}

func (t *tx) PutGlobalReferralRegistry(ctx context.Context, r *vault.GlobalReferralRegistry) error {
	return t.exec(ctx, "global referral registry", `
		INSERT INTO global_referral_registries (address, config, total_pending, total_claimed, total_bonus_count, total_referrer_count, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			total_pending = EXCLUDED.total_pending,
			total_claimed = EXCLUDED.total_claimed,
			total_bonus_count = EXCLUDED.total_bonus_count,
			total_referrer_count = EXCLUDED.total_referrer_count,
			last_updated = EXCLUDED.last_updated`,
		r.Address.String(), r.Config.String(), numeric(r.TotalPending), numeric(r.TotalClaimed),
		r.TotalBonusCount, r.TotalReferrerCount, r.LastUpdated,
	)
}

// TokenAccountsForUpdate locks accounts in address order regardless of the
// argument order.
func (t *tx) TokenAccountsForUpdate(ctx context.Context, addrs ...solana.PublicKey) ([]*custody.TokenAccount, error) {
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = a.String()
	}
	sorted := slices.Clone(keys)
	slices.Sort(sorted)

	rows, err := t.tx.Query(ctx, `
		SELECT address, mint, owner, amount FROM token_accounts
		WHERE address = ANY($1) ORDER BY address`+t.lock(), sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to query token accounts: %w", err)
	}
	defer rows.Close()

	found := make(map[solana.PublicKey]*custody.TokenAccount, len(addrs))
	for rows.Next() {
		var a custody.TokenAccount
		if err := rows.Scan(key(&a.Address), key(&a.Mint), key(&a.Owner), u64(&a.Amount)); err != nil {
			return nil, fmt.Errorf("failed to scan token account: %w", err)
		}
		found[a.Address] = &a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read token accounts: %w", err)
	}

	out := make([]*custody.TokenAccount, len(addrs))
	for i, a := range addrs {
		if acct, ok := found[a]; ok {
			copied := *acct
			out[i] = &copied
		}
	}
	return out, nil
}

func (t *tx) TokenAccount(ctx context.Context, addr solana.PublicKey) (*custody.TokenAccount, error) {
	var a custody.TokenAccount
	err := t.tx.QueryRow(ctx, `
		SELECT address, mint, owner, amount FROM token_accounts WHERE address = $1`, addr.String()).Scan(
		key(&a.Address), key(&a.Mint), key(&a.Owner), u64(&a.Amount),
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, custody.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token account: %w", err)
	}
	return &a, nil
}

func (t *tx) PutTokenAccount(ctx context.Context, a *custody.TokenAccount) error {
	return t.exec(ctx, "token account", `
		INSERT INTO token_accounts (address, mint, owner, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET amount = EXCLUDED.amount`,
		a.Address.String(), a.Mint.String(), a.Owner.String(), numeric(a.Amount),
	)
}

func (t *tx) AppendEvent(ctx context.Context, ev *events.Event) error {
	return t.exec(ctx, "event", `
		INSERT INTO outbox_events (id, type, vault, mint, payload, created_at)
		VALUES ($1, $2, $3, $4, $5::json, $6)`,
		ev.ID, string(ev.Type), ev.Vault.String(), ev.Mint.String(), string(ev.Payload), ev.CreatedAt,
	)
}
