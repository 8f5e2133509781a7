// Package ml implements the statistical classifier stage: a TF-IDF
// naive Bayes model over extracted transaction features.
package ml

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jbrukh/bayesian"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/feature"
)

// Sample is one labeled training observation.
type Sample struct {
	Account string
	Terms   []string
}

// Ranking is one account's probability in a prediction.
type Ranking struct {
	Account     string
	Probability float64
}

// Prediction is the classifier's ranked opinion for one transaction.
// Probabilities sum to 1.0 across known accounts. Margin is the gap
// between the top two accounts; a low margin is a review signal in its
// own right, distinct from low confidence.
type Prediction struct {
	Rankings   []Ranking
	Confidence float64
	Margin     float64
}

// Top returns the highest-probability account.
func (p *Prediction) Top() Ranking {
	if len(p.Rankings) == 0 {
		return Ranking{}
	}
	return p.Rankings[0]
}

// Classifier wraps a bayesian TF-IDF model. A classifier with no
// trained model reports "no opinion" rather than failing the pipeline.
type Classifier struct {
	mu      sync.RWMutex
	cl      *bayesian.Classifier
	classes []bayesian.Class
	version string
}

// NewClassifier creates an untrained classifier.
func NewClassifier() *Classifier {
	return &Classifier{version: "unloaded"}
}

// Train fits the model on labeled samples. Training replaces any
// previous model atomically; in-flight classifications finish against
// the old model.
func (c *Classifier) Train(samples []Sample) error {
	accounts := make(map[string]int)
	for _, s := range samples {
		if s.Account != "" && len(s.Terms) > 0 {
			accounts[s.Account]++
		}
	}
	if len(accounts) < 2 {
		return fmt.Errorf("%w: need samples for at least 2 accounts, have %d",
			common.ErrModelNotLoaded, len(accounts))
	}

	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	classes := make([]bayesian.Class, len(names))
	for i, name := range names {
		classes[i] = bayesian.Class(name)
	}

	cl := bayesian.NewClassifierTfIdf(classes...)
	for _, s := range samples {
		if s.Account == "" || len(s.Terms) == 0 {
			continue
		}
		cl.Learn(s.Terms, bayesian.Class(s.Account))
	}
	cl.ConvertTermsFreqToTfIdf()

	c.mu.Lock()
	c.cl = cl
	c.classes = classes
	c.version = modelVersion(names, len(samples))
	c.mu.Unlock()
	return nil
}

// Loaded reports whether a trained model is available.
func (c *Classifier) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cl != nil
}

// Version identifies the trained model; decisions record it so
// re-classification under an unchanged model can be detected.
func (c *Classifier) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Accounts lists the accounts the current model knows, in stable
// order. Empty until a model is trained.
func (c *Classifier) Accounts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	accounts := make([]string, len(c.classes))
	for i, class := range c.classes {
		accounts[i] = string(class)
	}
	return accounts
}

// Classify scores a feature vector against every known account. The
// second return value is false when no model is loaded, which the
// blender treats as "no opinion" and skips straight to LLM or human
// review.
func (c *Classifier) Classify(v feature.Vector) (Prediction, bool) {
	c.mu.RLock()
	cl, classes := c.cl, c.classes
	c.mu.RUnlock()

	if cl == nil {
		return Prediction{}, false
	}

	scores, _, _ := cl.LogScores(v.Terms())

	// Log scores become a proper distribution via softmax, shifted by
	// the max score for numerical stability.
	maxScore := scores[0]
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	var sum float64
	probs := make([]float64, len(scores))
	for i, s := range scores {
		probs[i] = math.Exp(s - maxScore)
		sum += probs[i]
	}

	rankings := make([]Ranking, len(scores))
	for i := range scores {
		rankings[i] = Ranking{
			Account:     string(classes[i]),
			Probability: probs[i] / sum,
		}
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].Probability != rankings[j].Probability {
			return rankings[i].Probability > rankings[j].Probability
		}
		return rankings[i].Account < rankings[j].Account
	})

	pred := Prediction{
		Rankings:   rankings,
		Confidence: rankings[0].Probability,
	}
	if len(rankings) > 1 {
		pred.Margin = rankings[0].Probability - rankings[1].Probability
	}
	return pred, true
}

func modelVersion(accounts []string, sampleCount int) string {
	h := sha256.New()
	for _, a := range accounts {
		fmt.Fprintf(h, "%s\n", a)
	}
	fmt.Fprintf(h, "n=%d", sampleCount)
	return fmt.Sprintf("tfidf-%x", h.Sum(nil)[:6])
}
