// Package regress fits a binomial logistic regression over grouped
// traffic-stop counts, modelling searches out of stops with categorical
// predictors. It is used to check whether raw search-rate disparities
// survive controlling for confounders like county, gender and age.
package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	maxIterations = 50
	tolerance     = 1e-10
	// clamp keeps fitted probabilities away from 0 and 1 so the IRLS
	// weights stay finite.
	clamp = 1e-10
)

// GroupCounts is one cell of the aggregated dataset: the number of
// trials (stops) and successes (searches) for a combination of
// predictor levels.
type GroupCounts struct {
	Levels    map[string]string
	Trials    int
	Successes int
}

// Coefficient is one fitted model term.
type Coefficient struct {
	Term      string  `json:"term"`
	Estimate  float64 `json:"estimate"` // log-odds scale
	StdErr    float64 `json:"std_err"`
	Z         float64 `json:"z"`
	OddsRatio float64 `json:"odds_ratio"`
}

// Model is a fitted logistic regression.
type Model struct {
	Coefficients  []Coefficient `json:"coefficients"`
	Iterations    int           `json:"iterations"`
	LogLikelihood float64       `json:"log_likelihood"`
}

// term is one dummy-coded design column.
type term struct {
	predictor string
	level     string
}

// FitLogistic fits searches/stops against the given categorical
// predictors by iteratively reweighted least squares.
//
// Each predictor is dummy-coded against a reference level, which is the
// level seen first in the input (matching the aggregation's
// first-appearance ordering). Groups with zero trials are skipped.
// Returns an error when the data is empty, a predictor is constant, or
// the design matrix is singular (e.g. perfectly collinear predictors).
func FitLogistic(groups []GroupCounts, predictors []string) (*Model, error) {
	rows := make([]GroupCounts, 0, len(groups))
	for _, g := range groups {
		if g.Trials > 0 {
			rows = append(rows, g)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no groups with observations to fit")
	}

	terms, err := dummyCode(rows, predictors)
	if err != nil {
		return nil, err
	}

	p := 1 + len(terms)
	n := len(rows)
	if n < p {
		return nil, fmt.Errorf("%d groups cannot identify %d coefficients", n, p)
	}

	// Dense design matrix: intercept column plus one indicator per
	// non-reference level.
	x := mat.NewDense(n, p, nil)
	trials := make([]float64, n)
	props := make([]float64, n)
	for i, g := range rows {
		x.Set(i, 0, 1)
		for j, t := range terms {
			if g.Levels[t.predictor] == t.level {
				x.Set(i, j+1, 1)
			}
		}
		trials[i] = float64(g.Trials)
		props[i] = float64(g.Successes) / float64(g.Trials)
	}

	beta := make([]float64, p)
	var cov *mat.Dense
	iterations := 0
	for iter := 0; iter < maxIterations; iter++ {
		iterations = iter + 1

		xtwx := mat.NewDense(p, p, nil)
		xtwz := mat.NewVecDense(p, nil)
		for i := 0; i < n; i++ {
			eta := 0.0
			for j := 0; j < p; j++ {
				eta += x.At(i, j) * beta[j]
			}
			mu := 1 / (1 + math.Exp(-eta))
			mu = math.Min(math.Max(mu, clamp), 1-clamp)

			v := mu * (1 - mu)
			w := trials[i] * v
			z := eta + (props[i]-mu)/v

			for j := 0; j < p; j++ {
				xij := x.At(i, j)
				if xij == 0 {
					continue
				}
				for k := 0; k < p; k++ {
					xtwx.Set(j, k, xtwx.At(j, k)+w*xij*x.At(i, k))
				}
				xtwz.SetVec(j, xtwz.AtVec(j)+w*xij*z)
			}
		}

		inv := mat.NewDense(p, p, nil)
		if err := inv.Inverse(xtwx); err != nil {
			return nil, fmt.Errorf("design matrix is singular: %w", err)
		}
		cov = inv

		next := mat.NewVecDense(p, nil)
		next.MulVec(inv, xtwz)

		delta := 0.0
		for j := 0; j < p; j++ {
			delta = math.Max(delta, math.Abs(next.AtVec(j)-beta[j]))
			beta[j] = next.AtVec(j)
		}
		if delta < tolerance {
			break
		}
		if iter == maxIterations-1 {
			return nil, fmt.Errorf("IRLS did not converge after %d iterations", maxIterations)
		}
	}

	model := &Model{
		Iterations:    iterations,
		LogLikelihood: logLikelihood(x, beta, rows),
		Coefficients:  make([]Coefficient, p),
	}
	for j := 0; j < p; j++ {
		se := math.Sqrt(cov.At(j, j))
		name := "(Intercept)"
		if j > 0 {
			t := terms[j-1]
			name = fmt.Sprintf("%s=%s", t.predictor, t.level)
		}
		model.Coefficients[j] = Coefficient{
			Term:      name,
			Estimate:  beta[j],
			StdErr:    se,
			Z:         beta[j] / se,
			OddsRatio: math.Exp(beta[j]),
		}
	}
	return model, nil
}

// dummyCode enumerates non-reference levels for each predictor in
// first-appearance order. The first level observed is the reference and
// gets no column.
func dummyCode(rows []GroupCounts, predictors []string) ([]term, error) {
	var terms []term
	for _, pred := range predictors {
		seen := make(map[string]bool)
		var levels []string
		for _, g := range rows {
			level, ok := g.Levels[pred]
			if !ok || level == "" {
				return nil, fmt.Errorf("group is missing a value for predictor %q", pred)
			}
			if !seen[level] {
				seen[level] = true
				levels = append(levels, level)
			}
		}
		if len(levels) < 2 {
			return nil, fmt.Errorf("predictor %q has fewer than two levels", pred)
		}
		for _, level := range levels[1:] {
			terms = append(terms, term{predictor: pred, level: level})
		}
	}
	return terms, nil
}

// logLikelihood computes the binomial log likelihood up to the constant
// combinatorial term, which does not depend on the coefficients.
func logLikelihood(x *mat.Dense, beta []float64, rows []GroupCounts) float64 {
	ll := 0.0
	for i, g := range rows {
		eta := 0.0
		for j := range beta {
			eta += x.At(i, j) * beta[j]
		}
		mu := 1 / (1 + math.Exp(-eta))
		mu = math.Min(math.Max(mu, clamp), 1-clamp)
		ll += float64(g.Successes)*math.Log(mu) + float64(g.Trials-g.Successes)*math.Log(1-mu)
	}
	return ll
}
