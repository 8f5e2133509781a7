package ml

import (
	"testing"
	"time"

	"github.com/finchbooks/finch/internal/feature"
	"github.com/finchbooks/finch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingCorpus() []Sample {
	terms := func(desc string, amount float64) []string {
		return feature.Extract(model.Transaction{
			Date:        time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
			Description: desc,
			Amount:      amount,
		}).Terms()
	}

	return []Sample{
		{Account: "Dining", Terms: terms("STARBUCKS STORE 001", -5.20)},
		{Account: "Dining", Terms: terms("STARBUCKS COFFEE", -6.10)},
		{Account: "Dining", Terms: terms("CHIPOTLE ONLINE", -12.40)},
		{Account: "Dining", Terms: terms("MCDONALDS F3041", -9.10)},
		{Account: "Software", Terms: terms("GITHUB INC SUBSCRIPTION", -21.00)},
		{Account: "Software", Terms: terms("JETBRAINS AMSTERDAM", -149.00)},
		{Account: "Software", Terms: terms("GITHUB COPILOT", -10.00)},
		{Account: "Utilities", Terms: terms("PACIFIC GAS ELECTRIC BILL", -240.00)},
		{Account: "Utilities", Terms: terms("COMCAST CABLE PAYMENT", -89.99)},
	}
}

func TestClassifier_UnloadedModelHasNoOpinion(t *testing.T) {
	c := NewClassifier()

	assert.False(t, c.Loaded())
	assert.Equal(t, "unloaded", c.Version())

	_, ok := c.Classify(feature.Vector{Tokens: []string{"starbucks"}})
	assert.False(t, ok)
}

func TestClassifier_TrainRequiresTwoAccounts(t *testing.T) {
	c := NewClassifier()
	err := c.Train([]Sample{{Account: "Dining", Terms: []string{"starbucks"}}})
	require.Error(t, err)
	assert.False(t, c.Loaded())
}

func TestClassifier_RanksKnownVendors(t *testing.T) {
	c := NewClassifier()
	require.NoError(t, c.Train(trainingCorpus()))
	require.True(t, c.Loaded())

	v := feature.Extract(model.Transaction{
		Date:        time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		Description: "STARBUCKS STORE 442",
		Amount:      -5.75,
	})

	pred, ok := c.Classify(v)
	require.True(t, ok)
	assert.Equal(t, "Dining", pred.Top().Account)
	assert.Len(t, pred.Rankings, 3)

	var sum float64
	for _, r := range pred.Rankings {
		sum += r.Probability
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, pred.Rankings[0].Probability-pred.Rankings[1].Probability, pred.Margin, 1e-9)
	assert.GreaterOrEqual(t, pred.Confidence, pred.Rankings[1].Probability)
}

func TestClassifier_Deterministic(t *testing.T) {
	c := NewClassifier()
	require.NoError(t, c.Train(trainingCorpus()))

	v := feature.Extract(model.Transaction{
		Date:        time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		Description: "GITHUB INC",
		Amount:      -21.00,
	})

	first, ok := c.Classify(v)
	require.True(t, ok)
	second, ok := c.Classify(v)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestClassifier_VersionChangesWithTrainingSet(t *testing.T) {
	c := NewClassifier()
	require.NoError(t, c.Train(trainingCorpus()))
	v1 := c.Version()

	extra := append(trainingCorpus(), Sample{Account: "Dining", Terms: []string{"pret", "manger"}})
	require.NoError(t, c.Train(extra))
	assert.NotEqual(t, v1, c.Version())
}
