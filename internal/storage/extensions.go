package storage

import (
	"database/sql"
	"math"
	"sort"

	"github.com/mattn/go-sqlite3"
)

// driverName is the name under which the engine registers its own SQLite
// driver variant carrying the fuzzy-string and statistical-aggregate
// scalars. mattn/go-sqlite3 only exposes RegisterFunc/RegisterAggregator
// through a per-connection hook, so a dedicated driver name is required;
// the stock "sqlite3" driver registered by the package's own init() is left
// untouched.
const driverName = "sqlite3_agentmem"

func registerFuzzyAndStatsFunctions() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("jaro_winkler", jaroWinkler, true); err != nil {
				return err
			}
			if err := conn.RegisterFunc("damerau_levenshtein", damerauLevenshtein, true); err != nil {
				return err
			}
			if err := conn.RegisterAggregator("median", newMedianAgg, true); err != nil {
				return err
			}
			if err := conn.RegisterAggregator("percentile", newPercentileAgg, true); err != nil {
				return err
			}
			return nil
		},
	})
}

// jaroWinkler computes the Jaro-Winkler similarity of a and b in [0,1].
// Registered for future use by fuzzy-title matching; not wired into dedup,
// which uses cosine similarity over embeddings instead.
func jaroWinkler(a, b string) float64 {
	j := jaroSimilarity(a, b)
	if j <= 0 {
		return j
	}
	prefix := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}
	return j + float64(prefix)*0.1*(1-j)
}

func jaroSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0.0
	}
	matchDist := int(math.Max(float64(la), float64(lb))/2.0) - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, la)
	bMatches := make([]bool, lb)
	matches := 0
	for i := 0; i < la; i++ {
		start := i - matchDist
		if start < 0 {
			start = 0
		}
		end := i + matchDist + 1
		if end > lb {
			end = lb
		}
		for k := start; k < end; k++ {
			if bMatches[k] || a[i] != b[k] {
				continue
			}
			aMatches[i] = true
			bMatches[k] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	var transpositions int
	k := 0
	for i := 0; i < la; i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions)/2)/m) / 3.0
}

// damerauLevenshtein computes the edit distance between a and b allowing
// insertion, deletion, substitution and adjacent transposition.
func damerauLevenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	d := make([][]int, la+2)
	for i := range d {
		d[i] = make([]int, lb+2)
	}

	maxDist := la + lb
	d[0][0] = maxDist
	for i := 0; i <= la; i++ {
		d[i+1][0] = maxDist
		d[i+1][1] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j+1] = maxDist
		d[1][j+1] = j
	}

	lastRow := make(map[rune]int)
	for i := 1; i <= la; i++ {
		lastCol := 0
		for j := 1; j <= lb; j++ {
			i1 := lastRow[rb[j-1]]
			j1 := lastCol
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
				lastCol = j
			}
			del := d[i][j+1] + 1
			ins := d[i+1][j] + 1
			sub := d[i][j] + cost
			trans := d[i1][j1] + (i-i1-1) + 1 + (j-j1-1)

			best := del
			if ins < best {
				best = ins
			}
			if sub < best {
				best = sub
			}
			if trans < best {
				best = trans
			}
			d[i+1][j+1] = best
		}
		lastRow[ra[i-1]] = i
	}
	return d[la+1][lb+1]
}

// medianAgg implements the median(x) SQL aggregate.
type medianAgg struct {
	values []float64
}

func newMedianAgg() *medianAgg { return &medianAgg{} }

func (m *medianAgg) Step(v float64) { m.values = append(m.values, v) }

func (m *medianAgg) Done() float64 {
	return percentileOf(m.values, 0.5)
}

// percentileAgg implements the percentile(x, p) SQL aggregate, p in [0,1].
type percentileAgg struct {
	values []float64
	p      float64
}

func newPercentileAgg() *percentileAgg { return &percentileAgg{p: 0.5} }

func (p *percentileAgg) Step(v, pct float64) {
	p.values = append(p.values, v)
	p.p = pct
}

func (p *percentileAgg) Done() float64 {
	return percentileOf(p.values, p.p)
}

func percentileOf(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
