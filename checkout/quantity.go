package checkout

// ProductQty is the accumulated quantity of one product across a session's lines
type ProductQty struct {
	ProductRef string
	Qty        int
}

// ProductQuantities walks items depth first and sums quantities per product.
// A line with children counts its children instead of itself. Lines without a
// product reference are skipped. The result keeps first-appearance order.
func ProductQuantities(items []LineItem) []ProductQty {
	index := make(map[string]int)
	var out []ProductQty

	var walk func(lines []LineItem)
	walk = func(lines []LineItem) {
		for _, item := range lines {
			if len(item.Children) > 0 {
				walk(item.Children)
				continue
			}
			if item.ProductRef == "" || item.Qty <= 0 {
				continue
			}
			if i, ok := index[item.ProductRef]; ok {
				out[i].Qty += item.Qty
				continue
			}
			index[item.ProductRef] = len(out)
			out = append(out, ProductQty{ProductRef: item.ProductRef, Qty: item.Qty})
		}
	}
	walk(items)

	return out
}

// TotalQty returns the number of units in the session, counting bundle components
func (s *PendingSession) TotalQty() int {
	total := 0
	for _, pq := range ProductQuantities(s.Items) {
		total += pq.Qty
	}
	return total
}
