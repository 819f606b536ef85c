package model

// Journal operation names.
const (
	OpDeploy      = "deploy"
	OpMint        = "mint"
	OpSetPrice    = "set_price"
	OpSetParams   = "set_params"
	OpEnter       = "enter"
	OpTransfer    = "transfer"
	OpDistribute  = "distribute"
	OpWithdraw    = "withdraw"
	OpWithdrawAll = "withdraw_all"
)

// JournalEntry is one audited ledger operation. Amounts are base-10 strings in
// the 18-decimal fixed-point scale.
type JournalEntry struct {
	Ledger     string            `json:"ledger"`
	Op         string            `json:"op"`
	Caller     string            `json:"caller,omitempty"`
	Account    string            `json:"account,omitempty"`
	Asset      string            `json:"asset,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	RecordedAt string            `json:"recorded_at"`
}
