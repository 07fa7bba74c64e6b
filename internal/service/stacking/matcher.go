package stacking

import (
	"sort"

	"github.com/scholarpass/achievement-engine/internal/models"
)

// matchRule selects, from the user's unconsumed tokens, the set that would be
// consumed to satisfy the rule. Slots are filled strictest-first (higher min
// level, then higher min rarity) and each slot takes the lowest-overqualified
// candidate, preserving stronger tokens for stricter slots. Tokens must
// arrive in creation order; ties fall to the earliest-created token so the
// selection is deterministic. Returns false when any slot cannot be covered.
func matchRule(rule *models.StackingRule, tokens []models.Token) ([]models.Token, bool) {
	order := slotOrder(rule.RequiredSlots)

	used := make([]bool, len(tokens))
	chosen := make([]models.Token, len(rule.RequiredSlots))

	for _, slotIdx := range order {
		slot := rule.RequiredSlots[slotIdx]
		best := -1
		for i := range tokens {
			if used[i] || !slot.Satisfies(&tokens[i]) {
				continue
			}
			if best == -1 || tokens[i].Points < tokens[best].Points {
				best = i
			}
		}
		if best == -1 {
			return nil, false
		}
		used[best] = true
		chosen[slotIdx] = tokens[best]
	}

	return chosen, true
}

// coversExactly reports whether the chosen tokens, and only those tokens, can
// fill every slot of the rule with a one-to-one assignment. Unlike matchRule
// this is a full backtracking check: it defends against stale client-side
// eligibility data without rejecting a valid but unusually ordered selection.
func coversExactly(rule *models.StackingRule, chosen []models.Token) bool {
	if len(chosen) != len(rule.RequiredSlots) {
		return false
	}
	used := make([]bool, len(chosen))
	return assignSlots(rule.RequiredSlots, chosen, used, 0)
}

func assignSlots(slots []models.RuleSlot, tokens []models.Token, used []bool, slotIdx int) bool {
	if slotIdx == len(slots) {
		return true
	}
	for i := range tokens {
		if used[i] || !slots[slotIdx].Satisfies(&tokens[i]) {
			continue
		}
		used[i] = true
		if assignSlots(slots, tokens, used, slotIdx+1) {
			return true
		}
		used[i] = false
	}
	return false
}

// slotOrder returns slot indices sorted strictest-first: min level descending,
// then min rarity descending, then declaration order.
func slotOrder(slots []models.RuleSlot) []int {
	order := make([]int, len(slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := slots[order[a]], slots[order[b]]
		if sa.MinLevel != sb.MinLevel {
			return sa.MinLevel > sb.MinLevel
		}
		return sa.MinRarity.Rank() > sb.MinRarity.Rank()
	})
	return order
}
