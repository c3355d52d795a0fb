// Package latticelm learns a word lexicon and a two-level Pitman-Yor
// n-gram language model from unsegmented text or weighted lattices by
// annealed collapsed Gibbs sampling.
package latticelm

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

const concat string = "<concat>"

// Reserved context ids, never part of any vocabulary.
const (
	bosID   uint32 = math.MaxUint32     // sentence/word start padding
	novelID uint32 = math.MaxUint32 - 1 // in-flight unknown word during composition
)

type symbolID interface{ ~uint32 }

// restaurant holds one context's seating arrangement: the per-table
// customer counts for each id plus the aggregate statistics the CRP
// probabilities are computed from.
type restaurant[T symbolID] struct {
	tables             map[T][]uint32
	customerCount      map[T]uint32
	totalCustomerCount uint32
	tableCount         map[T]uint32
	totalTableCount    uint32
}

func newRestaurant[T symbolID]() *restaurant[T] {
	return &restaurant[T]{
		tables:        make(map[T][]uint32),
		customerCount: make(map[T]uint32),
		tableCount:    make(map[T]uint32),
	}
}

// addCustomer seats one customer for id at table k, where k equal to
// the current table count opens a new table. Reports whether a new
// table was opened.
func (rst *restaurant[T]) addCustomer(id T, k int) bool {
	opened := false
	if k < len(rst.tables[id]) {
		rst.tables[id][k]++
	} else {
		rst.tables[id] = append(rst.tables[id], 1)
		rst.tableCount[id]++
		rst.totalTableCount++
		opened = true
	}
	rst.customerCount[id]++
	rst.totalCustomerCount++
	return opened
}

// removeCustomer unseats one customer for id from table k. Reports
// whether the table dissolved and whether the restaurant emptied.
func (rst *restaurant[T]) removeCustomer(id T, k int) (dissolved, emptied bool) {
	rst.tables[id][k]--
	rst.customerCount[id]--
	rst.totalCustomerCount--
	if rst.tables[id][k] == 0 {
		rst.tables[id] = append(rst.tables[id][:k], rst.tables[id][k+1:]...)
		rst.tableCount[id]--
		rst.totalTableCount--
		dissolved = true
	}
	if rst.customerCount[id] == 0 {
		delete(rst.customerCount, id)
		delete(rst.tableCount, id)
		delete(rst.tables, id)
	}
	emptied = rst.totalTableCount == 0
	return dissolved, emptied
}

// PYLM is a hierarchical Pitman-Yor n-gram model over ids of type T.
// Contexts of every length below the order share per-length strength
// and discount parameters, resampled from their posteriors once per
// iteration.
type PYLM[T symbolID] struct {
	restaurants map[string]*restaurant[T]

	order    int
	strength []float64
	discount []float64
	gammaA   []float64
	gammaB   []float64
	betaA    []float64
	betaB    []float64

	rng *rand.Rand
	src exprand.Source
}

// NewPYLM returns a model of the given n-gram order. rng drives the
// seating choices, seed the hyperparameter draws.
func NewPYLM[T symbolID](order int, initialStrength, initialDiscount float64, rng *rand.Rand, seed uint64) *PYLM[T] {
	if order < 1 {
		panic("NewPYLM: order must be at least 1")
	}
	if initialDiscount < 0.0 || initialDiscount >= 1.0 {
		panic("NewPYLM: discount out of range")
	}
	if initialStrength < 0.0 {
		panic("NewPYLM: strength out of range")
	}
	lm := &PYLM[T]{
		restaurants: make(map[string]*restaurant[T]),
		order:       order,
		strength:    make([]float64, order),
		discount:    make([]float64, order),
		gammaA:      make([]float64, order),
		gammaB:      make([]float64, order),
		betaA:       make([]float64, order),
		betaB:       make([]float64, order),
		rng:         rng,
		src:         exprand.NewSource(seed),
	}
	for i := 0; i < order; i++ {
		lm.strength[i] = initialStrength
		lm.discount[i] = initialDiscount
		lm.gammaA[i] = 1.0
		lm.gammaB[i] = 1.0
		lm.betaA[i] = 1.0
		lm.betaB[i] = 1.0
	}
	return lm
}

// Order returns the n-gram order.
func (lm *PYLM[T]) Order() int { return lm.order }

func ctxKey[T symbolID](u []T) string {
	if len(u) == 0 {
		return ""
	}
	parts := make([]string, len(u))
	for i, id := range u {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, concat)
}

func parseCtxKey[T symbolID](key string) []T {
	if key == "" {
		return nil
	}
	parts := strings.Split(key, concat)
	u := make([]T, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			panic(fmt.Sprintf("parseCtxKey: bad key %q", key))
		}
		u[i] = T(v)
	}
	return u
}

// calcParts fills the per-level seated mass and smoothing coefficient
// for each suffix of u, index i holding the suffix of length i.
func (lm *PYLM[T]) calcParts(id T, u []T) (bodies, smooths []float64) {
	if len(u) > lm.order-1 {
		panic("calcParts: context longer than model order")
	}
	bodies = make([]float64, len(u)+1)
	smooths = make([]float64, len(u)+1)
	for i := 0; i <= len(u); i++ {
		suffix := u[len(u)-i:]
		theta := lm.strength[i]
		d := lm.discount[i]
		body := 0.0
		smooth := 1.0
		if rst, ok := lm.restaurants[ctxKey(suffix)]; ok {
			body = (float64(rst.customerCount[id]) - d*float64(rst.tableCount[id])) /
				(theta + float64(rst.totalCustomerCount))
			smooth = (theta + d*float64(rst.totalTableCount)) /
				(theta + float64(rst.totalCustomerCount))
		}
		bodies[i] = body
		smooths[i] = smooth
	}
	return bodies, smooths
}

// CalcProb returns the probability of id after context u given the
// base probability, along with the per-level partial probabilities
// (index i is the estimate using only suffixes up to length i).
func (lm *PYLM[T]) CalcProb(id T, u []T, base float64) (float64, []float64) {
	bodies, smooths := lm.calcParts(id, u)
	probs := make([]float64, len(u)+1)
	p := base
	for i := range bodies {
		p = bodies[i] + smooths[i]*p
		probs[i] = p
	}
	return p + math.SmallestNonzeroFloat64, probs
}

// SeatedMass returns the probability mass id receives from seated
// customers alone, with no base contribution. Zero for ids with no
// customers in any suffix context.
func (lm *PYLM[T]) SeatedMass(id T, u []T) float64 {
	bodies, smooths := lm.calcParts(id, u)
	p := 0.0
	for i := range bodies {
		p = bodies[i] + smooths[i]*p
	}
	return p
}

// BaseMass returns the probability mass context u passes through to
// the base distribution, the product of the smoothing coefficients of
// every suffix level.
func (lm *PYLM[T]) BaseMass(u []T) float64 {
	if len(u) > lm.order-1 {
		panic("BaseMass: context longer than model order")
	}
	mass := 1.0
	for i := 0; i <= len(u); i++ {
		suffix := u[len(u)-i:]
		if rst, ok := lm.restaurants[ctxKey(suffix)]; ok {
			theta := lm.strength[i]
			d := lm.discount[i]
			mass *= (theta + d*float64(rst.totalTableCount)) /
				(theta + float64(rst.totalCustomerCount))
		}
	}
	return mass
}

// AddCustomer seats one customer for id in context u, propagating new
// tables to shorter contexts. Reports whether the root level opened a
// table, i.e. whether the occurrence drew from the base distribution.
func (lm *PYLM[T]) AddCustomer(id T, u []T, base float64) bool {
	_, probs := lm.CalcProb(id, u, base)
	return lm.addCustomerAt(id, u, probs, base)
}

func (lm *PYLM[T]) addCustomerAt(id T, u []T, probs []float64, base float64) bool {
	depth := len(u)
	theta := lm.strength[depth]
	d := lm.discount[depth]
	key := ctxKey(u)
	rst, ok := lm.restaurants[key]
	if !ok {
		rst = newRestaurant[T]()
		lm.restaurants[key] = rst
	}
	tbls := rst.tables[id]
	scores := make([]float64, len(tbls)+1)
	sum := 0.0
	for k, c := range tbls {
		scores[k] = math.Max(0.0, float64(c)-d)
		sum += scores[k]
	}
	backoff := base
	if depth > 0 {
		backoff = probs[depth-1]
	}
	scores[len(tbls)] = (theta + d*float64(rst.totalTableCount)) * backoff
	sum += scores[len(tbls)]

	r := lm.rng.Float64() * sum
	acc := 0.0
	k := 0
	for {
		acc += scores[k]
		if acc > r {
			break
		}
		k++
		if k > len(tbls) {
			panic("AddCustomer: table sampling overran")
		}
	}

	if !rst.addCustomer(id, k) {
		return false
	}
	if depth > 0 {
		return lm.addCustomerAt(id, u[1:], probs, base)
	}
	return true
}

// RemoveCustomer unseats one customer for id in context u, propagating
// dissolved tables to shorter contexts. Reports whether the root level
// dissolved a table, i.e. whether a base draw was retracted.
func (lm *PYLM[T]) RemoveCustomer(id T, u []T) bool {
	key := ctxKey(u)
	rst, ok := lm.restaurants[key]
	if !ok {
		panic(fmt.Sprintf("RemoveCustomer: context (%v) has no restaurant", u))
	}
	tbls, ok := rst.tables[id]
	if !ok || len(tbls) == 0 {
		panic(fmt.Sprintf("RemoveCustomer: id (%v) not seated in context (%v)", id, u))
	}
	sum := 0.0
	for _, c := range tbls {
		sum += float64(c)
	}
	r := lm.rng.Float64() * sum
	acc := 0.0
	k := 0
	for {
		acc += float64(tbls[k])
		if acc > r {
			break
		}
		k++
		if k >= len(tbls) {
			panic("RemoveCustomer: table sampling overran")
		}
	}

	dissolved, emptied := rst.removeCustomer(id, k)
	baseRetracted := false
	if dissolved {
		if len(u) > 0 {
			baseRetracted = lm.RemoveCustomer(id, u[1:])
		} else {
			baseRetracted = true
		}
	}
	if emptied {
		delete(lm.restaurants, key)
	}
	return baseRetracted
}

func (lm *PYLM[T]) padContext() []T {
	u := make([]T, lm.order-1)
	for i := range u {
		u[i] = T(bosID)
	}
	return u
}

func shiftContext[T symbolID](u []T, id T) []T {
	if len(u) == 0 {
		return u
	}
	copy(u, u[1:])
	u[len(u)-1] = id
	return u
}

// CalcSentence scores the sequence position by position with contexts
// padded by the start sentinel, using bases[j] as the base probability
// at position j. With commit set, each position is also seated and the
// positions whose add reached the base distribution are reported.
// Returns the natural log probability of the sequence.
func (lm *PYLM[T]) CalcSentence(seq []T, bases []float64, commit bool) (float64, []int) {
	if len(bases) < len(seq) {
		panic(fmt.Sprintf("CalcSentence: sequence of length %d exceeds base table of length %d", len(seq), len(bases)))
	}
	u := lm.padContext()
	logp := 0.0
	var basePositions []int
	for j, id := range seq {
		p, _ := lm.CalcProb(id, u, bases[j])
		logp += math.Log(p)
		if commit && lm.AddCustomer(id, u, bases[j]) {
			basePositions = append(basePositions, j)
		}
		u = shiftContext(u, id)
	}
	return logp, basePositions
}

// RemoveCustomers retracts the sequence, one customer per position,
// and reports the positions whose removal retracted a base draw.
func (lm *PYLM[T]) RemoveCustomers(seq []T) []int {
	u := lm.padContext()
	var basePositions []int
	for j, id := range seq {
		if lm.RemoveCustomer(id, u) {
			basePositions = append(basePositions, j)
		}
		u = shiftContext(u, id)
	}
	return basePositions
}

// VocabSize returns the number of distinct ids with seated customers.
func (lm *PYLM[T]) VocabSize() int {
	rst, ok := lm.restaurants[""]
	if !ok {
		return 0
	}
	return len(rst.customerCount)
}

// Size returns the total number of seated n-gram entries.
func (lm *PYLM[T]) Size() int {
	n := 0
	for _, rst := range lm.restaurants {
		n += len(rst.customerCount)
	}
	return n
}

// Strength returns the strength parameter for contexts of length i.
func (lm *PYLM[T]) Strength(i int) float64 { return lm.strength[i] }

// Discount returns the discount parameter for contexts of length i.
func (lm *PYLM[T]) Discount(i int) float64 { return lm.discount[i] }

func (lm *PYLM[T]) sortedKeys() []string {
	keys := make([]string, 0, len(lm.restaurants))
	for key := range lm.restaurants {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedIDs[T symbolID](m map[T][]uint32) []T {
	ids := make([]T, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SampleHyperParameters redraws the per-length strength and discount
// parameters from their posteriors using the auxiliary variable scheme
// of Teh (2006).
func (lm *PYLM[T]) SampleHyperParameters() {
	byLen := make([][]string, lm.order)
	for _, key := range lm.sortedKeys() {
		n := 0
		if key != "" {
			n = strings.Count(key, concat) + 1
		}
		byLen[n] = append(byLen[n], key)
	}

	for n := 0; n < lm.order; n++ {
		aStrength := lm.gammaA[n]
		bStrength := lm.gammaB[n]
		aDiscount := lm.betaA[n]
		bDiscount := lm.betaB[n]
		theta := lm.strength[n]
		d := lm.discount[n]
		for _, key := range byLen[n] {
			rst := lm.restaurants[key]
			if rst.totalTableCount < 2 {
				continue
			}
			betaDist := distuv.Beta{
				Alpha: theta + 1.0,
				Beta:  float64(rst.totalCustomerCount) - 1.0,
				Src:   lm.src,
			}
			xu := betaDist.Rand()
			bStrength -= math.Log(xu)
			for t := 1; t < int(rst.totalTableCount); t++ {
				y := distuv.Bernoulli{P: theta / (theta + d*float64(t)), Src: lm.src}.Rand()
				aStrength += y
				aDiscount += 1.0 - y
			}
			for _, id := range sortedIDs(rst.tables) {
				for _, customers := range rst.tables[id] {
					for j := 1; j < int(customers); j++ {
						z := distuv.Bernoulli{P: (float64(j) - 1.0) / (float64(j) - d), Src: lm.src}.Rand()
						bDiscount += 1.0 - z
					}
				}
			}
		}
		lm.strength[n] = distuv.Gamma{Alpha: aStrength, Beta: bStrength, Src: lm.src}.Rand()
		lm.discount[n] = distuv.Beta{Alpha: aDiscount, Beta: bDiscount, Src: lm.src}.Rand()
		if lm.strength[n] < 0.0 {
			panic("SampleHyperParameters: negative strength")
		}
		if lm.discount[n] < 0.0 || lm.discount[n] >= 1.0 {
			panic("SampleHyperParameters: discount out of range")
		}
	}
}

// Trim compacts the vocabulary of ids 0..vocabSize-1, returning for
// each id its new index, or -1 when the id has no remaining customers.
// With remap set, every internal context and customer id is rewritten
// through the mapping; reserved sentinel ids map to themselves.
func (lm *PYLM[T]) Trim(vocabSize int, remap bool) []int {
	mapping := make([]int, vocabSize)
	root := lm.restaurants[""]
	next := 0
	for id := 0; id < vocabSize; id++ {
		if root != nil && root.customerCount[T(uint32(id))] > 0 {
			mapping[id] = next
			next++
		} else {
			mapping[id] = -1
		}
	}
	if !remap {
		return mapping
	}

	remapID := func(id T) T {
		if uint32(id) == bosID || uint32(id) == novelID {
			return id
		}
		nw := mapping[int(uint32(id))]
		if nw == -1 {
			panic(fmt.Sprintf("Trim: id (%v) still seated after trim", id))
		}
		return T(uint32(nw))
	}
	rebuilt := make(map[string]*restaurant[T], len(lm.restaurants))
	for key, rst := range lm.restaurants {
		u := parseCtxKey[T](key)
		for i := range u {
			u[i] = remapID(u[i])
		}
		nr := newRestaurant[T]()
		nr.totalCustomerCount = rst.totalCustomerCount
		nr.totalTableCount = rst.totalTableCount
		for id, tbls := range rst.tables {
			nid := remapID(id)
			nr.tables[nid] = tbls
			nr.customerCount[nid] = rst.customerCount[id]
			nr.tableCount[nid] = rst.tableCount[id]
		}
		rebuilt[ctxKey(u)] = nr
	}
	lm.restaurants = rebuilt
	return mapping
}
