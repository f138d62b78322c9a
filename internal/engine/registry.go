package engine

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/antoniostano/whisperpool/internal/model"
)

const idCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const idLength = 6

// registry maps job id -> *job. It holds an RWMutex around insert/lookup
// only; it is never held while a worker decodes or a waiter blocks, per
// spec §4.3/§5.
type registry struct {
	mu   sync.RWMutex
	jobs map[string]*job

	idMu sync.Mutex // guards id generation, matching the reference's single seeded RNG
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*job)}
}

// insert generates a unique id, retrying on collision, stores the job, and
// returns the new job (its id is the assigned one).
func (r *registry) insert(samples []float32, wavBlob []byte, cfg model.DecodeConfig) (*job, error) {
	r.idMu.Lock()
	defer r.idMu.Unlock()

	for attempt := 0; attempt < 64; attempt++ {
		id, err := randomID()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if _, exists := r.jobs[id]; exists {
			r.mu.Unlock()
			continue
		}
		j := newJob(id, samples, wavBlob, cfg)
		r.jobs[id] = j
		r.mu.Unlock()
		return j, nil
	}
	return nil, fmt.Errorf("engine: could not generate a unique job id after 64 attempts")
}

func (r *registry) lookup(id string) (*job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

func randomID() (string, error) {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("engine: generating job id: %w", err)
	}
	out := make([]byte, idLength)
	for i, b := range buf {
		out[i] = idCharset[int(b)%len(idCharset)]
	}
	return string(out), nil
}
