package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

func TestAdvance(t *testing.T) {
	cases := []struct {
		cur, target, want domain.Status
		changed           bool
	}{
		{domain.StatusSent, domain.StatusDelivered, domain.StatusDelivered, true},
		{domain.StatusSent, domain.StatusRead, domain.StatusRead, true},
		{domain.StatusDelivered, domain.StatusRead, domain.StatusRead, true},
		{domain.StatusDelivered, domain.StatusSent, domain.StatusDelivered, false},
		{domain.StatusRead, domain.StatusDelivered, domain.StatusRead, false},
		{domain.StatusRead, domain.StatusRead, domain.StatusRead, false},
		{"", domain.StatusDelivered, "", false},
	}
	for _, tc := range cases {
		got, changed := Advance(tc.cur, tc.target)
		assert.Equal(t, tc.want, got, "%s -> %s", tc.cur, tc.target)
		assert.Equal(t, tc.changed, changed, "%s -> %s", tc.cur, tc.target)
	}
}

// Every permutation of signals ends in the highest state reached.
func TestAdvanceAnyInterleaving(t *testing.T) {
	signals := []domain.Status{domain.StatusDelivered, domain.StatusRead, domain.StatusDelivered, domain.StatusSent}
	var permute func([]domain.Status, int)
	permute = func(s []domain.Status, k int) {
		if k == len(s) {
			cur := domain.StatusSent
			prev := rank(cur)
			for _, sig := range s {
				cur, _ = Advance(cur, sig)
				assert.GreaterOrEqual(t, rank(cur), prev)
				prev = rank(cur)
			}
			assert.Equal(t, domain.StatusRead, cur)
			return
		}
		for i := k; i < len(s); i++ {
			s[k], s[i] = s[i], s[k]
			permute(s, k+1)
			s[k], s[i] = s[i], s[k]
		}
	}
	permute(signals, 0)
}

func TestBefore(t *testing.T) {
	assert.Nil(t, Before(domain.StatusSent))
	assert.Equal(t, []domain.Status{domain.StatusSent}, Before(domain.StatusDelivered))
	assert.Equal(t, []domain.Status{domain.StatusSent, domain.StatusDelivered}, Before(domain.StatusRead))
	assert.False(t, Valid(""))
}
