package orderbook

import (
	"math/rand"
	"testing"
)

// prefill rests `levels` bid levels below bidTop and ask levels above askBottom,
// perLevel orders each.
func prefill(b *testing.B, m *Matcher, ids *idGen, levels, perLevel int, bidTop, askBottom, step, qty int64) {
	b.Helper()
	for i := 0; i < levels; i++ {
		for j := 0; j < perLevel; j++ {
			if _, err := m.Submit(ids.order(Bid, bidTop-int64(i)*step, qty, GTC)); err != nil {
				b.Fatal(err)
			}
			if _, err := m.Submit(ids.order(Ask, askBottom+int64(i)*step, qty, GTC)); err != nil {
				b.Fatal(err)
			}
		}
	}
}

// BenchmarkMatcherSubmit measures crossing IOC orders against 100 levels
func BenchmarkMatcherSubmit(b *testing.B) {
	m := NewMatcher()
	ids := &idGen{}
	prefill(b, m, ids, 100, 1, 1000, 1100, 1, 1<<40)

	b.ReportAllocs()
	b.ResetTimer()

	// Alternating buy/sell, both cross and fill
	for i := 0; i < b.N; i++ {
		side, price := Bid, int64(1100)
		if i%2 == 0 {
			side, price = Ask, 1000
		}
		if _, err := m.Submit(ids.order(side, price, 10, IOC)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMatcherCancel measures cancelling resting orders across 1000 levels
func BenchmarkMatcherCancel(b *testing.B) {
	m := NewMatcher()
	ids := &idGen{}

	resting := make([]uint64, 1000)
	for i := range resting {
		o := ids.order(Bid, int64(1000+i), 100, GTC)
		if _, err := m.Submit(o); err != nil {
			b.Fatal(err)
		}
		resting[i] = o.ID
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		idx := i % len(resting)
		m.Cancel(resting[idx])

		// Re-add with a fresh id to keep the book stable
		o := ids.order(Bid, int64(1000+idx), 100, GTC)
		if _, err := m.Submit(o); err != nil {
			b.Fatal(err)
		}
		resting[idx] = o.ID
	}
}

// BenchmarkMatcherBestPrice measures the best bid/ask heap peek
func BenchmarkMatcherBestPrice(b *testing.B) {
	m := NewMatcher()
	prefill(b, m, &idGen{}, 1000, 1, 10000, 11000, 1, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.BestBid()
		_, _ = m.BestAsk()
	}
}

// BenchmarkMatcherSnapshot measures level aggregation used for bootstrap
// snapshots and API responses
func BenchmarkMatcherSnapshot(b *testing.B) {
	m := NewMatcher()
	prefill(b, m, &idGen{}, 500, 5, 10000, 11000, 1, 100)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}

// BenchmarkMatcherRealisticWorkload: 70% crossing IOC, 20% resting GTC,
// 10% cancels
func BenchmarkMatcherRealisticWorkload(b *testing.B) {
	m := NewMatcher()
	ids := &idGen{}
	prefill(b, m, ids, 200, 1, 10000, 11000, 10, 1000)

	rng := rand.New(rand.NewSource(12345))
	resting := make([]uint64, 0, 1000)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		r := rng.Float64()
		switch {
		case r < 0.7:
			side, price := Bid, int64(11000)
			if rng.Float64() < 0.5 {
				side, price = Ask, 10000
			}
			if _, err := m.Submit(ids.order(side, price, int64(10+rng.Intn(90)), IOC)); err != nil {
				b.Fatal(err)
			}

		case r < 0.9:
			side, price := Bid, int64(9900-rng.Intn(100))
			if rng.Float64() < 0.5 {
				side, price = Ask, 11100+int64(rng.Intn(100))
			}
			o := ids.order(side, price, int64(10+rng.Intn(90)), GTC)
			if _, err := m.Submit(o); err != nil {
				b.Fatal(err)
			}
			resting = append(resting, o.ID)

		default:
			if len(resting) > 0 {
				idx := rng.Intn(len(resting))
				m.Cancel(resting[idx])
				resting[idx] = resting[len(resting)-1]
				resting = resting[:len(resting)-1]
			}
		}
	}
}
