package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFIFOSell_S5(t *testing.T) {
	book := NewBook()
	book.OpenBuy("AAPL", "lot1", 10, 100)
	book.OpenBuy("AAPL", "lot2", 10, 110)

	matches, unmatched := book.Sell("AAPL", 15, 120)

	assert.Equal(t, 0.0, unmatched)
	assert.InDelta(t, 250.0, TotalRealizedPnL(matches), 1e-6)

	remaining := book.buyLots["AAPL"]
	assert.Len(t, remaining, 1)
	assert.InDelta(t, 5.0, remaining[0].RemainingQty, 1e-9)
	assert.Equal(t, 110.0, remaining[0].Price)
}

func TestFIFOCoverSymmetric(t *testing.T) {
	book := NewBook()
	book.OpenShort("TSLA", "s1", 5, 200)

	matches, unmatched := book.Cover("TSLA", 5, 180)

	assert.Equal(t, 0.0, unmatched)
	assert.InDelta(t, 100.0, TotalRealizedPnL(matches), 1e-6) // (200-180)*5
}

func TestFIFOUnmatchedQty(t *testing.T) {
	book := NewBook()
	book.OpenBuy("AAPL", "lot1", 5, 100)

	matches, unmatched := book.Sell("AAPL", 8, 110)

	assert.InDelta(t, 3.0, unmatched, 1e-9)
	assert.Len(t, matches, 1)
}
