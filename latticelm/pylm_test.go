package latticelm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLM(order int, seed int64) *PYLM[WordID] {
	return NewPYLM[WordID](order, initialStrength, initialDiscount, rand.New(rand.NewSource(seed)), uint64(seed))
}

func TestRestaurantSeating(t *testing.T) {
	rst := newRestaurant[WordID]()

	assert.True(t, rst.addCustomer(3, 0), "first customer must open a table")
	assert.False(t, rst.addCustomer(3, 0), "joining an existing table opens nothing")
	assert.True(t, rst.addCustomer(3, 1))
	assert.True(t, rst.addCustomer(7, 0))

	assert.Equal(t, uint32(3), rst.customerCount[3])
	assert.Equal(t, uint32(2), rst.tableCount[3])
	assert.Equal(t, uint32(4), rst.totalCustomerCount)
	assert.Equal(t, uint32(3), rst.totalTableCount)

	dissolved, emptied := rst.removeCustomer(3, 0)
	assert.False(t, dissolved)
	assert.False(t, emptied)
	dissolved, emptied = rst.removeCustomer(3, 0)
	assert.True(t, dissolved)
	assert.False(t, emptied)
	dissolved, emptied = rst.removeCustomer(3, 0)
	assert.True(t, dissolved)
	assert.False(t, emptied)
	_, seated := rst.tables[3]
	assert.False(t, seated, "fully unseated id must be dropped")

	dissolved, emptied = rst.removeCustomer(7, 0)
	assert.True(t, dissolved)
	assert.True(t, emptied)
	assert.Equal(t, uint32(0), rst.totalCustomerCount)
}

func TestCalcProbEmptyModelIsBase(t *testing.T) {
	lm := newTestLM(2, 1)
	p, probs := lm.CalcProb(0, []WordID{WordID(bosID)}, 0.5)
	assert.InDelta(t, 0.5, p, 1e-12)
	require.Len(t, probs, 2)
	assert.InDelta(t, 0.5, probs[0], 1e-12)
	assert.InDelta(t, 0.5, probs[1], 1e-12)
	assert.Equal(t, 1.0, lm.BaseMass([]WordID{WordID(bosID)}))
	assert.Equal(t, 0.0, lm.SeatedMass(0, []WordID{WordID(bosID)}))
}

func TestSeatedAndBaseMassSplitProbability(t *testing.T) {
	lm := newTestLM(2, 2)
	seq := []WordID{0, 1, 0, 2, 1}
	bases := []float64{0.1, 0.1, 0.1, 0.1, 0.1}
	lm.CalcSentence(seq, bases, true)

	u := []WordID{0}
	for _, id := range []WordID{0, 1, 2} {
		base := 0.07
		p, _ := lm.CalcProb(id, u, base)
		split := lm.SeatedMass(id, u) + lm.BaseMass(u)*base
		assert.InDelta(t, split, p, 1e-12, "id %d", id)
	}
}

func TestAddRemoveRoundTripRestoresEmptyModel(t *testing.T) {
	lm := newTestLM(3, 3)
	seq := []WordID{0, 1, 2}
	bases := []float64{0.2, 0.2, 0.2}

	logp, added := lm.CalcSentence(seq, bases, true)
	assert.Less(t, logp, 0.0)
	// Singleton occurrences must all reach the base distribution.
	assert.Equal(t, []int{0, 1, 2}, added)
	assert.Equal(t, 3, lm.VocabSize())

	removed := lm.RemoveCustomers(seq)
	assert.Equal(t, []int{0, 1, 2}, removed)
	assert.Equal(t, 0, lm.VocabSize())
	assert.Equal(t, 0, lm.Size())
	assert.Empty(t, lm.restaurants)
}

func TestCalcSentenceMoreDataRaisesProbability(t *testing.T) {
	lm := newTestLM(2, 4)
	seq := []WordID{0, 1}
	bases := []float64{0.1, 0.1}
	first, _ := lm.CalcSentence(seq, bases, true)
	second, _ := lm.CalcSentence(seq, bases, true)
	assert.Greater(t, second, first, "a repeated sentence must become more probable")
}

func TestCalcSentencePanicsOnShortBaseTable(t *testing.T) {
	lm := newTestLM(2, 5)
	assert.Panics(t, func() {
		lm.CalcSentence([]WordID{0, 1, 2}, []float64{0.1}, false)
	})
}

func TestRemoveUnseatedPanics(t *testing.T) {
	lm := newTestLM(2, 6)
	assert.Panics(t, func() {
		lm.RemoveCustomer(0, []WordID{WordID(bosID)})
	})
}

func TestSampleHyperParametersStaysInRange(t *testing.T) {
	lm := newTestLM(2, 7)
	bases := []float64{0.1, 0.1, 0.1, 0.1}
	for i := 0; i < 20; i++ {
		lm.CalcSentence([]WordID{0, 1, 0, 1}, bases, true)
	}
	for i := 0; i < 5; i++ {
		lm.SampleHyperParameters()
		for n := 0; n < lm.Order(); n++ {
			assert.Greater(t, lm.Strength(n), 0.0)
			assert.GreaterOrEqual(t, lm.Discount(n), 0.0)
			assert.Less(t, lm.Discount(n), 1.0)
		}
	}
}

func TestTrimCompactsVocabulary(t *testing.T) {
	lm := newTestLM(2, 8)
	bases := []float64{0.1, 0.1}
	lm.CalcSentence([]WordID{0, 2}, bases, true)

	mapping := lm.Trim(3, true)
	assert.Equal(t, []int{0, -1, 1}, mapping)
	assert.Equal(t, 2, lm.VocabSize())

	root := lm.restaurants[""]
	require.NotNil(t, root)
	assert.Equal(t, uint32(1), root.customerCount[0])
	assert.Equal(t, uint32(1), root.customerCount[1])
	_, stale := root.customerCount[2]
	assert.False(t, stale)

	// The bigram context of the old id 0 must survive under its new id.
	_, ok := lm.restaurants[ctxKey([]WordID{0})]
	assert.True(t, ok)
}

func TestCtxKeyRoundTrip(t *testing.T) {
	u := []WordID{4, WordID(bosID), 9}
	assert.Equal(t, u, parseCtxKey[WordID](ctxKey(u)))
	assert.Equal(t, "", ctxKey[WordID](nil))
	assert.Nil(t, parseCtxKey[WordID](""))
}

func TestCalcProbAddsEpsilonFloor(t *testing.T) {
	lm := newTestLM(1, 9)
	p, _ := lm.CalcProb(0, nil, 0)
	assert.Equal(t, math.SmallestNonzeroFloat64, p)
}
