// Package delivery holds the per-message status ordering sent → delivered → read.
package delivery

import "github.com/khushnawaj/scriptSelf-sub001/internal/domain"

var order = []domain.Status{domain.StatusSent, domain.StatusDelivered, domain.StatusRead}

func rank(s domain.Status) int {
	for i, st := range order {
		if st == s {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether s is a tracked delivery state.
func Valid(s domain.Status) bool { return rank(s) > 0 }

// Advance applies target to current. Untracked messages and moves to an
// earlier or equal state leave current unchanged.
func Advance(current, target domain.Status) (domain.Status, bool) {
	if rank(current) == 0 || rank(target) <= rank(current) {
		return current, false
	}
	return target, true
}

// Before returns the states from which target is reachable. Stores use it as
// the filter of a conditional update so concurrent signals cannot regress a message.
func Before(target domain.Status) []domain.Status {
	r := rank(target)
	if r <= 1 {
		return nil
	}
	out := make([]domain.Status, r-1)
	copy(out, order[:r-1])
	return out
}
