package billing

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cryptoperk/cryptoperk-backend/shared/models"
)

// cardOp is one step of a random card-mutation sequence. kind selects among
// add-default, add-non-default, make-default and delete; pick selects which
// existing card the step targets.
type cardOp struct {
	kind int
	pick int
}

func genCardOps() gopter.Gen {
	opGen := gopter.CombineGens(gen.IntRange(0, 3), gen.IntRange(0, 9)).
		Map(func(vals []interface{}) cardOp {
			return cardOp{kind: vals[0].(int), pick: vals[1].(int)}
		})
	return gen.SliceOf(opGen)
}

// TestDefaultCardInvariantHoldsUnderRandomOps drives random operation
// sequences against a fresh owner and checks after every step that exactly
// one stored card is default whenever any card exists, and none is default
// when the set is empty.
func TestDefaultCardInvariantHoldsUnderRandomOps(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one default while any card exists", prop.ForAll(
		func(ops []cardOp) string {
			db, _, service, owner := setupCardTest(t)

			for i, op := range ops {
				var cards []models.Card
				if err := db.Where(owner.ForeignKey()+" = ?", owner.OwnerID()).
					Order("created_at").Find(&cards).Error; err != nil {
					return fmt.Sprintf("step %d: list failed: %v", i, err)
				}

				switch op.kind {
				case 0, 1:
					req := AddCardRequest{
						Number:    fmt.Sprintf("40000000000000%02d", i%100),
						ExpMonth:  int64(i%12) + 1,
						ExpYear:   2030,
						IsDefault: op.kind == 0,
					}
					if _, err := service.AddCard(owner, req); err != nil {
						return fmt.Sprintf("step %d: add failed: %v", i, err)
					}
				case 2:
					if len(cards) == 0 {
						continue
					}
					target := cards[op.pick%len(cards)]
					if _, err := service.MakeDefault(owner, target.ID); err != nil {
						return fmt.Sprintf("step %d: make-default failed: %v", i, err)
					}
				case 3:
					if len(cards) == 0 {
						continue
					}
					target := cards[op.pick%len(cards)]
					if _, err := service.DeleteCard(owner, target.ID); err != nil {
						return fmt.Sprintf("step %d: delete failed: %v", i, err)
					}
				}

				var total, defaults int64
				if err := db.Model(&models.Card{}).
					Where(owner.ForeignKey()+" = ?", owner.OwnerID()).
					Count(&total).Error; err != nil {
					return fmt.Sprintf("step %d: count failed: %v", i, err)
				}
				if err := db.Model(&models.Card{}).
					Where(owner.ForeignKey()+" = ? AND is_default = ?", owner.OwnerID(), true).
					Count(&defaults).Error; err != nil {
					return fmt.Sprintf("step %d: count defaults failed: %v", i, err)
				}

				if total == 0 && defaults != 0 {
					return fmt.Sprintf("step %d: %d defaults with no cards", i, defaults)
				}
				if total > 0 && defaults != 1 {
					return fmt.Sprintf("step %d: %d defaults across %d cards", i, defaults, total)
				}
			}
			return ""
		},
		genCardOps(),
	))

	properties.TestingRun(t)
}
