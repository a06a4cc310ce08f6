package progressive

// Evaluate returns the tax owed on amount under schedule, in the unit of
// amount.
//
// Each bracket whose threshold lies below amount is taxed in full at its
// rate. The first bracket whose threshold is at or above amount is the
// terminal one: only the slice between the previous threshold and amount
// is taxed there, and later brackets are ignored. A threshold equal to
// amount is therefore terminal, not consumed.
func Evaluate(schedule Schedule, amount float64) float64 {
	sum := 0.0
	previous := 0.0
	for _, bracket := range schedule.brackets {
		if bracket.UpTo < amount {
			sum += bracket.Rate * (bracket.UpTo - previous)
			previous = bracket.UpTo
			continue
		}
		sum += bracket.Rate * (amount - previous)
		break
	}
	return sum
}

// Flat returns amount taxed at a single rate.
func Flat(amount, rate float64) float64 {
	return amount * rate
}

// Slice is the portion of an amount that falls into one bracket.
type Slice struct {
	From   float64 `json:"from"`
	UpTo   float64 `json:"-"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
	Tax    float64 `json:"tax"`
}

// Breakdown returns the slices of amount taxed by each bracket, following
// the same boundary policy as Evaluate. The Tax fields sum to Evaluate.
func Breakdown(schedule Schedule, amount float64) []Slice {
	var slices []Slice
	previous := 0.0
	for _, bracket := range schedule.brackets {
		if bracket.UpTo < amount {
			width := bracket.UpTo - previous
			slices = append(slices, Slice{
				From:   previous,
				UpTo:   bracket.UpTo,
				Rate:   bracket.Rate,
				Amount: width,
				Tax:    bracket.Rate * width,
			})
			previous = bracket.UpTo
			continue
		}
		width := amount - previous
		slices = append(slices, Slice{
			From:   previous,
			UpTo:   bracket.UpTo,
			Rate:   bracket.Rate,
			Amount: width,
			Tax:    bracket.Rate * width,
		})
		break
	}
	return slices
}

// MarginalRate returns the rate of the bracket that is terminal for amount.
func MarginalRate(schedule Schedule, amount float64) float64 {
	for _, bracket := range schedule.brackets {
		if bracket.UpTo >= amount {
			return bracket.Rate
		}
	}
	return schedule.TopRate()
}
