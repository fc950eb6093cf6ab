package async

import (
	"math/rand"
	"sync"
	"time"
)

// SimulatedIterations is the fixed iteration count reported by the simulated recomputation
const SimulatedIterations = 100

// Outcome produces the result of a job that reached its completion trigger
type Outcome interface {
	Produce(job *Job) Result
}

// OutcomeFunc adapts a function to the Outcome interface
type OutcomeFunc func(job *Job) Result

// Produce calls f(job)
func (f OutcomeFunc) Produce(job *Job) Result {
	return f(job)
}

// SimulatedOutcome fabricates a converged result with accuracy in [0.85, 0.99)
type SimulatedOutcome struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedOutcome creates a SimulatedOutcome. A zero seed uses the current time.
func NewSimulatedOutcome(seed int64) *SimulatedOutcome {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedOutcome{rng: rand.New(rand.NewSource(seed))}
}

// Produce returns a fresh simulated result
func (o *SimulatedOutcome) Produce(*Job) Result {
	o.mu.Lock()
	accuracy := 0.85 + o.rng.Float64()*0.14
	o.mu.Unlock()

	return Result{
		Accuracy:    accuracy,
		Iterations:  SimulatedIterations,
		Convergence: true,
	}
}
