package model

// LedgerSnapshot is the full persisted state of a ledger. Addresses are
// checksummed hex strings and amounts are base-10 strings so the snapshot
// round-trips through JSON and text columns without precision loss.
type LedgerSnapshot struct {
	Owner       string           `json:"owner"`
	Reservoir   string           `json:"reservoir"`
	MinAmount   string           `json:"min_amount"`
	FeePercent  uint8            `json:"fee_percent"`
	TotalSupply string           `json:"total_supply"`
	Balances    []BalanceEntry   `json:"balances"`
	Investors   []string         `json:"investors"`
	Prices      []PriceEntry     `json:"prices"`
	MinedAssets []MinedAssetInfo `json:"mined_assets"`
	Pending     []PendingEntry   `json:"pending"`
	InFlight    []TransferIntent `json:"in_flight,omitempty"`
	UpdatedAt   string           `json:"updated_at,omitempty"`
}

// BalanceEntry is a nonzero share balance.
type BalanceEntry struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// PriceEntry is a payment asset and its unit price, in roster order.
type PriceEntry struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
}

// MinedAssetInfo carries the distribution counters of a mined asset, in roster order.
type MinedAssetInfo struct {
	Asset           string `json:"asset"`
	EverDistributed string `json:"ever_distributed"`
	EverWithdrawn   string `json:"ever_withdrawn"`
}

// PendingEntry is a nonzero amount owed to a holder in an asset.
type PendingEntry struct {
	Holder string `json:"holder"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Transfer kinds.
const (
	TransferPayment = "payment"
	TransferPayout  = "payout"
)

// TransferIntent is an outgoing asset transfer that was about to be sent when
// the snapshot holding it was saved. The snapshot already reflects it.
type TransferIntent struct {
	Kind   string `json:"kind"`
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}
