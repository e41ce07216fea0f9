package ledger

// Default credit cost per operation kind. Deployments override these
// through configuration; the ledger itself never prices operations ad hoc.
var defaultCosts = map[Kind]int64{
	KindBasicAnalysis: 1,
	KindFullAnalysis:  2,
	KindAdGeneration:  3,
}

// Monthly allowance per tier. Unlimited tiers keep an allowance of 0
// because their balance is never consulted.
var tierAllowances = map[Tier]int64{
	TierFree:           25,
	TierStarter:        100,
	TierProfessional:   250,
	TierAgencyStandard: 600,
	TierAgencyPremium:  0,
	TierEnterprise:     0,
}

// AllowanceFor returns the monthly credit allowance for a tier.
func AllowanceFor(tier Tier) int64 {
	return tierAllowances[tier]
}

// CostTable maps operation kinds to credit costs. It is immutable after
// construction; pricing changes require a restart.
type CostTable struct {
	costs map[Kind]int64
}

// NewCostTable builds a cost table from the defaults plus overrides.
// A zero or negative override is a configuration error.
func NewCostTable(overrides map[Kind]int64) (*CostTable, error) {
	costs := make(map[Kind]int64, len(defaultCosts))
	for kind, cost := range defaultCosts {
		costs[kind] = cost
	}
	for kind, cost := range overrides {
		if _, ok := costs[kind]; !ok {
			return nil, ErrUnknownKind
		}
		if cost < 1 {
			return nil, ErrInvalidAmount
		}
		costs[kind] = cost
	}
	return &CostTable{costs: costs}, nil
}

// Cost returns the per-unit credit cost of a kind.
func (t *CostTable) Cost(kind Kind) (int64, error) {
	cost, ok := t.costs[kind]
	if !ok {
		return 0, ErrUnknownKind
	}
	return cost, nil
}

// Required computes the total credits for quantity units of a kind.
func (t *CostTable) Required(kind Kind, quantity int64) (int64, error) {
	if quantity < 1 {
		return 0, ErrInvalidQuantity
	}
	cost, err := t.Cost(kind)
	if err != nil {
		return 0, err
	}
	return cost * quantity, nil
}
