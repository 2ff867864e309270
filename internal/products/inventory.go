package products

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

type Period string

const (
	PeriodAll     Period = ""
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// fallbackEOQ is used when demand or holding cost is not positive.
const fallbackEOQ = 100

// gapTolerance is how far stock may sit from the optimum before an action
// other than hold is suggested.
const gapTolerance = 10

const (
	ActionReorder = "reorder"
	ActionReduce  = "reduce"
	ActionHold    = "hold"
)

// InventoryQuery selects the sales to plan from and the cost model.
type InventoryQuery struct {
	Period Period `json:"period,omitempty"`
	// Value is the month (1-12), quarter (1-4) or year the period selects.
	Value     int    `json:"value,omitempty"`
	StockCode string `json:"stock_code,omitempty"`
	// AvgDemand is units per month.
	AvgDemand    float64 `json:"avg_demand"`
	HoldingCost  float64 `json:"holding_cost"`
	OrderingCost float64 `json:"ordering_cost"`
	LeadTimeDays int     `json:"lead_time_days"`
	// CurrentStock is the on-hand level for every planned product. The
	// transaction export carries no stock levels.
	CurrentStock int `json:"current_stock"`
}

func DefaultInventoryQuery() InventoryQuery {
	return InventoryQuery{
		AvgDemand:    100,
		HoldingCost:  5,
		OrderingCost: 100,
		LeadTimeDays: 7,
	}
}

func (q InventoryQuery) validate() error {
	switch q.Period {
	case PeriodAll:
	case PeriodMonth:
		if q.Value < 1 || q.Value > 12 {
			return apperrors.Validation(fmt.Sprintf("month must be 1-12, got %d", q.Value))
		}
	case PeriodQuarter:
		if q.Value < 1 || q.Value > 4 {
			return apperrors.Validation(fmt.Sprintf("quarter must be 1-4, got %d", q.Value))
		}
	case PeriodYear:
		if q.Value < 1 {
			return apperrors.Validation(fmt.Sprintf("year must be positive, got %d", q.Value))
		}
	default:
		return apperrors.Validation(fmt.Sprintf("unknown period %q", q.Period))
	}
	if q.AvgDemand < 0 || q.HoldingCost < 0 || q.OrderingCost < 0 || q.LeadTimeDays < 0 || q.CurrentStock < 0 {
		return apperrors.Validation("inventory parameters cannot be negative")
	}
	return nil
}

func (q InventoryQuery) selects(tx models.Transaction) bool {
	if q.StockCode != "" && tx.StockCode != q.StockCode {
		return false
	}
	switch q.Period {
	case PeriodMonth:
		return int(tx.InvoiceDate.Month()) == q.Value
	case PeriodQuarter:
		return (int(tx.InvoiceDate.Month())-1)/3+1 == q.Value
	case PeriodYear:
		return tx.InvoiceDate.Year() == q.Value
	}
	return true
}

// EOQ is the economic order quantity sqrt(2*D*S/H).
func EOQ(demand, orderingCost, holdingCost float64) float64 {
	if demand <= 0 || holdingCost <= 0 {
		return fallbackEOQ
	}
	return math.Sqrt(2 * demand * orderingCost / holdingCost)
}

type StockLine struct {
	StockCode    string  `json:"stock_code"`
	Description  string  `json:"description"`
	Quantity     float64 `json:"quantity"`
	Revenue      float64 `json:"revenue"`
	CurrentStock int     `json:"current_stock"`
	OptimalStock int     `json:"optimal_stock"`
	// Gap is optimal minus current stock; positive means a shortfall.
	Gap    int    `json:"gap"`
	Action string `json:"action"`
}

type InventoryPlan struct {
	Query InventoryQuery `json:"query"`
	EOQ   float64        `json:"eoq"`
	Lines []StockLine    `json:"lines"`
}

func action(gap int) string {
	switch {
	case gap > gapTolerance:
		return ActionReorder
	case gap < -gapTolerance:
		return ActionReduce
	}
	return ActionHold
}

// OptimizeInventory sums quantity and revenue per product over the selected
// period and compares the current stock with the EOQ level. Lines are
// ordered by quantity sold, largest first.
func OptimizeInventory(txs []models.Transaction, q InventoryQuery) (InventoryPlan, error) {
	if err := q.validate(); err != nil {
		return InventoryPlan{}, err
	}

	lines := make(map[string]*StockLine)
	for _, tx := range txs {
		if !q.selects(tx) {
			continue
		}
		l, ok := lines[tx.StockCode]
		if !ok {
			l = &StockLine{StockCode: tx.StockCode, Description: tx.Description}
			lines[tx.StockCode] = l
		}
		l.Quantity += tx.Quantity
		l.Revenue += tx.Revenue
	}
	if len(lines) == 0 {
		return InventoryPlan{}, apperrors.EmptyResult("inventory", "no sales match the selected period and product")
	}

	plan := InventoryPlan{Query: q, EOQ: EOQ(q.AvgDemand, q.OrderingCost, q.HoldingCost)}
	optimal := int(plan.EOQ)
	plan.Lines = make([]StockLine, 0, len(lines))
	for _, l := range lines {
		l.CurrentStock = q.CurrentStock
		l.OptimalStock = optimal
		l.Gap = optimal - q.CurrentStock
		l.Action = action(l.Gap)
		plan.Lines = append(plan.Lines, *l)
	}
	slices.SortFunc(plan.Lines, func(a, b StockLine) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.StockCode, b.StockCode)
	})
	return plan, nil
}
