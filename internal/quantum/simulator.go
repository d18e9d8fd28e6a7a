package quantum

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
)

// Simulator measures an n-qubit register prepared with a Hadamard on every
// qubit, so each shot yields a uniformly distributed bitstring.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator seeded from the OS entropy pool.
func NewSimulator() *Simulator {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return &Simulator{rng: rand.New(rand.NewChaCha8(seed))}
}

// NewSeededSimulator creates a deterministic simulator for tests and replays.
func NewSeededSimulator(seed uint64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *Simulator) Draw(ctx context.Context, qubits, shots int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if qubits < 1 || qubits > 16 {
		return 0, fmt.Errorf("simulator supports 1-16 qubits, got %d", qubits)
	}
	if shots < 1 {
		return 0, fmt.Errorf("shots must be positive, got %d", shots)
	}

	counts := s.measure(qubits, shots)
	return ReduceCounts(counts, qubits)
}

func (s *Simulator) measure(qubits, shots int) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes := uint64(1) << qubits
	counts := make(map[string]int)
	for i := 0; i < shots; i++ {
		v := s.rng.Uint64N(outcomes)
		key := strconv.FormatUint(v, 2)
		for len(key) < qubits {
			key = "0" + key
		}
		counts[key]++
	}
	return counts
}
