package ledger

import "github.com/ethereum/go-ethereum/common"

// roster is an append-only, de-duplicated sequence of addresses kept in
// first-appearance order.
type roster struct {
	items []common.Address
	index map[common.Address]int
}

func newRoster() *roster {
	return &roster{index: make(map[common.Address]int)}
}

// Add appends the address if it was never seen and reports whether it did.
func (r *roster) Add(address common.Address) bool {
	if _, ok := r.index[address]; ok {
		return false
	}
	r.index[address] = len(r.items)
	r.items = append(r.items, address)
	return true
}

// dropLast removes address when it is the most recent entry.
func (r *roster) dropLast(address common.Address) bool {
	n := len(r.items)
	if n == 0 || r.items[n-1] != address {
		return false
	}
	delete(r.index, address)
	r.items = r.items[:n-1]
	return true
}

func (r *roster) Contains(address common.Address) bool {
	_, ok := r.index[address]
	return ok
}

func (r *roster) Len() int {
	return len(r.items)
}

func (r *roster) At(i int) (common.Address, bool) {
	if i < 0 || i >= len(r.items) {
		return common.Address{}, false
	}
	return r.items[i], true
}

func (r *roster) Items() []common.Address {
	out := make([]common.Address, len(r.items))
	copy(out, r.items)
	return out
}
