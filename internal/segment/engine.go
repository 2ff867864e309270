package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "rfm-dashboard/internal/errors"
	"rfm-dashboard/internal/models"
)

const (
	DefaultSeed          = 42
	DefaultRestarts      = 10
	DefaultMaxIterations = 300
	DefaultTolerance     = 1e-4

	features = 3
)

// Engine partitions customers with k-means over standardized R, F and M.
// Runs are deterministic for a given Seed.
type Engine struct {
	Seed          uint64
	Restarts      int
	MaxIterations int
	Tolerance     float64

	logger *slog.Logger
}

func NewEngine(seed uint64, restarts, maxIter int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Seed:          seed,
		Restarts:      restarts,
		MaxIterations: maxIter,
		Tolerance:     DefaultTolerance,
		logger:        logger,
	}
}

type Result struct {
	Customers []models.SegmentedCustomer
	// Requested is the k asked for; K is the k actually used.
	Requested int
	K         int
	// Centroids are in standardized feature space, one row per label.
	Centroids [][]float64
	Inertia   float64
}

func (r Result) Assignments() []models.Assignment {
	out := make([]models.Assignment, len(r.Customers))
	for i, c := range r.Customers {
		out[i] = models.Assignment{CustomerID: c.CustomerID, ClusterID: c.ClusterID}
	}
	return out
}

// Segment labels every customer with a cluster in [0, K). Labels are
// numbered by first appearance in input order. Clustering is CPU bound and
// does not observe ctx cancellation.
func (e *Engine) Segment(ctx context.Context, customers []models.CustomerRFM, k int) (Result, error) {
	if k < 1 {
		return Result{}, apperrors.Validation(fmt.Sprintf("cluster count must be at least 1, got %d", k))
	}
	if len(customers) == 0 {
		return Result{}, apperrors.EmptyResult("segment", "no customers to segment")
	}

	effective := min(k, len(customers))
	if effective < k {
		e.log().WarnContext(ctx, "cluster count exceeds customers, reduced",
			"requested", k, "effective", effective, "customers", len(customers))
	}

	data := Standardize(customers)

	restarts := max(e.Restarts, 1)
	maxIter := max(e.MaxIterations, 1)
	rng := rand.New(rand.NewPCG(e.Seed, e.Seed))

	var best run
	best.inertia = math.Inf(1)
	for range restarts {
		r := lloyd(data, kmeansPlusPlus(data, effective, rng), maxIter, e.Tolerance)
		if r.inertia < best.inertia {
			best = r
		}
	}

	labels, centroids := canonicalize(best.labels, best.centroids)

	result := Result{
		Customers: make([]models.SegmentedCustomer, len(customers)),
		Requested: k,
		K:         effective,
		Centroids: centroids,
		Inertia:   best.inertia,
	}
	for i, c := range customers {
		result.Customers[i] = models.SegmentedCustomer{CustomerRFM: c, ClusterID: labels[i]}
	}

	return result, nil
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// Standardize returns the customers as rows of population z-scores of
// recency, frequency and monetary. A constant column standardizes to 0.
func Standardize(customers []models.CustomerRFM) *mat.Dense {
	n := len(customers)
	data := mat.NewDense(n, features, nil)
	for i, c := range customers {
		data.Set(i, 0, float64(c.Recency))
		data.Set(i, 1, float64(c.Frequency))
		data.Set(i, 2, c.Monetary)
	}

	col := make([]float64, n)
	for j := range features {
		mat.Col(col, j, data)
		mean, std := stat.PopMeanStdDev(col, nil)
		for i := range n {
			z := 0.0
			if std > 0 {
				z = (col[i] - mean) / std
			}
			data.Set(i, j, z)
		}
	}
	return data
}

type run struct {
	labels    []int
	centroids [][]float64
	inertia   float64
}

// kmeansPlusPlus seeds k centers, each drawn with probability proportional
// to its squared distance from the nearest chosen center.
func kmeansPlusPlus(data *mat.Dense, k int, rng *rand.Rand) [][]float64 {
	n, _ := data.Dims()
	centers := make([][]float64, 0, k)
	chosen := make([]bool, n)

	first := rng.IntN(n)
	chosen[first] = true
	centers = append(centers, rowCopy(data, first))

	dist := make([]float64, n)
	for i := range n {
		dist[i] = sqDist(data.RawRowView(i), centers[0])
	}

	for len(centers) < k {
		total := floats.Sum(dist)

		next := -1
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range dist {
				acc += d
				if acc > target && d > 0 {
					next = i
					break
				}
			}
			if next < 0 {
				next = floats.MaxIdx(dist)
			}
		} else {
			for i := range n {
				if !chosen[i] {
					next = i
					break
				}
			}
		}

		chosen[next] = true
		center := rowCopy(data, next)
		centers = append(centers, center)
		for i := range n {
			dist[i] = min(dist[i], sqDist(data.RawRowView(i), center))
		}
	}

	return centers
}

func lloyd(data *mat.Dense, centers [][]float64, maxIter int, tol float64) run {
	n, d := data.Dims()
	k := len(centers)
	labels := make([]int, n)
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, d)
	}
	counts := make([]int, k)

	for range maxIter {
		assign(data, centers, labels)

		for c := range k {
			floats.Scale(0, sums[c])
			counts[c] = 0
		}
		for i := range n {
			floats.Add(sums[labels[i]], data.RawRowView(i))
			counts[labels[i]]++
		}

		shift := 0.0
		for c := range k {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(sums[c], centers[c])
			copy(centers[c], sums[c])
		}

		if shift <= tol {
			break
		}
	}

	inertia := assign(data, centers, labels)
	return run{labels: labels, centroids: centers, inertia: inertia}
}

// assign sets each row to its nearest center, lowest index on ties, and
// returns the total squared distance.
func assign(data *mat.Dense, centers [][]float64, labels []int) float64 {
	n, _ := data.Dims()
	inertia := 0.0
	for i := range n {
		row := data.RawRowView(i)
		bestC, bestD := 0, math.Inf(1)
		for c, center := range centers {
			if dd := sqDist(row, center); dd < bestD {
				bestC, bestD = c, dd
			}
		}
		labels[i] = bestC
		inertia += bestD
	}
	return inertia
}

// canonicalize renumbers labels in order of first appearance. Labels no
// row carries are numbered after the used ones.
func canonicalize(labels []int, centroids [][]float64) ([]int, [][]float64) {
	mapping := make([]int, len(centroids))
	for i := range mapping {
		mapping[i] = -1
	}

	next := 0
	for _, l := range labels {
		if mapping[l] < 0 {
			mapping[l] = next
			next++
		}
	}
	for i := range mapping {
		if mapping[i] < 0 {
			mapping[i] = next
			next++
		}
	}

	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = mapping[l]
	}
	ordered := make([][]float64, len(centroids))
	for old, c := range centroids {
		ordered[mapping[old]] = c
	}
	return out, ordered
}

func rowCopy(data *mat.Dense, i int) []float64 {
	return append([]float64(nil), data.RawRowView(i)...)
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}
