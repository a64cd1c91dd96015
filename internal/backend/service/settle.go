package service

import (
	"cmp"
	"slices"

	"github.com/cwrk-planet/room-sync/internal/domain"
)

type balance struct {
	userID int64
	name   string
	amount int64
}

// Plan matches debtors to creditors greedily, largest balances first, and
// returns the payer -> payee movements that clear every score. Balances
// that do not sum to zero leave the remainder unmatched.
func Plan(players []domain.Player) []domain.Settlement {
	var creditors, debtors []balance
	for _, p := range players {
		switch {
		case p.CurrentScore > 0:
			creditors = append(creditors, balance{p.UserID, p.Nickname, p.CurrentScore})
		case p.CurrentScore < 0:
			debtors = append(debtors, balance{p.UserID, p.Nickname, -p.CurrentScore})
		}
	}
	byAmount := func(a, b balance) int {
		if c := cmp.Compare(b.amount, a.amount); c != 0 {
			return c
		}
		return cmp.Compare(a.userID, b.userID)
	}
	slices.SortFunc(creditors, byAmount)
	slices.SortFunc(debtors, byAmount)

	out := make([]domain.Settlement, 0, max(len(creditors), len(debtors)))
	ci, di := 0, 0
	for ci < len(creditors) && di < len(debtors) {
		c, d := &creditors[ci], &debtors[di]
		amount := min(c.amount, d.amount)
		out = append(out, domain.Settlement{
			FromUserID:   d.userID,
			ToUserID:     c.userID,
			Amount:       amount,
			FromUserName: d.name,
			ToUserName:   c.name,
		})
		c.amount -= amount
		d.amount -= amount
		if c.amount == 0 {
			ci++
		}
		if d.amount == 0 {
			di++
		}
	}

	return out
}
