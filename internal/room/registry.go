package room

import (
	cryptorand "crypto/rand"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/n0remac/classroom-ptt/internal/logging"
	"github.com/n0remac/classroom-ptt/internal/ptt"
	"github.com/n0remac/classroom-ptt/internal/storage"
)

const (
	codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeDigits  = "0123456789"
)

// Registry owns every live room and every room still in its post-expiry
// download cooldown. One background goroutine (Run) sweeps both on a
// ticker; every other method is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	cooldowns map[string]*cooldownEntry

	ttl        time.Duration
	cooldown   time.Duration
	storageDir string
	log        *logging.Logger
	rng        *rand.Rand

	stop chan struct{}
}

// NewRegistry constructs an empty registry. storageDir empty means every
// room gets an in-memory sink; otherwise rooms get a filesystem sink
// rooted under storageDir/<code>.
func NewRegistry(ttl, cooldown time.Duration, storageDir string, log *logging.Logger) *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		cooldowns:  make(map[string]*cooldownEntry),
		ttl:        ttl,
		cooldown:   cooldown,
		storageDir: storageDir,
		log:        log,
		rng:        newSeededRand(),
		stop:       make(chan struct{}),
	}
}

// newSeededRand draws a seed from crypto/rand once and uses it to start a
// math/rand/v2 ChaCha8 source, so room-code draws stay fast under load
// without reusing a single insecure global RNG for something
// identity-bearing (a room code is effectively a bearer credential for the
// session).
func newSeededRand() *rand.Rand {
	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return rand.New(rand.NewChaCha8(seed))
}

func (reg *Registry) randomCode() string {
	b := make([]byte, 6)
	for i := 0; i < 3; i++ {
		b[i] = codeLetters[reg.rng.IntN(len(codeLetters))]
	}
	for i := 3; i < 6; i++ {
		b[i] = codeDigits[reg.rng.IntN(len(codeDigits))]
	}
	return string(b)
}

// freshCode draws codes until one collides with neither a live room nor a
// room still in cooldown. Caller must hold reg.mu.
func (reg *Registry) freshCode() string {
	for {
		code := reg.randomCode()
		if _, live := reg.rooms[code]; live {
			continue
		}
		if _, cooling := reg.cooldowns[code]; cooling {
			continue
		}
		return code
	}
}

// CreateRoom allocates a fresh room with a unique code and starts its
// handler's actor goroutine.
func (reg *Registry) CreateRoom(enableCloudRecording bool) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := reg.freshCode()
	now := time.Now()

	sink := reg.newSink(code)
	log := reg.log.With("room " + code)
	handler := ptt.NewHandler(code, sink, log)
	go handler.Run()

	r := &Room{
		Code:                 code,
		CreatedAt:            now,
		ExpiredAt:            now.Add(reg.ttl),
		EnableCloudRecording: enableCloudRecording,
		Handler:              handler,
		Sink:                 sink,
	}
	reg.rooms[code] = r
	return r
}

func (reg *Registry) newSink(code string) storage.Sink {
	if reg.storageDir == "" {
		return storage.NewMemorySink()
	}
	fs, err := storage.NewFileSink(reg.storageDir, code, reg.log)
	if err != nil {
		reg.log.Errorf("create file sink for room %s: %v, falling back to memory", code, err)
		return storage.NewMemorySink()
	}
	return fs
}

// Get returns the live room for code, if any.
func (reg *Registry) Get(code string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[code]
	return r, ok
}

// TTL returns the time remaining before code expires. Ok is false if code
// is not a live room.
func (reg *Registry) TTL(code string) (time.Duration, bool) {
	r, ok := reg.Get(code)
	if !ok {
		return 0, false
	}
	return r.TTL(time.Now()), true
}

// Cooldown returns the time remaining in code's post-expiry download
// window. Ok is false if code is neither live nor cooling down (a live
// room always reports its full cooldown-to-be as zero until it expires).
func (reg *Registry) Cooldown(code string) (time.Duration, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, live := reg.rooms[code]; live {
		return 0, true
	}
	c, ok := reg.cooldowns[code]
	if !ok {
		return 0, false
	}
	return c.Cooldown(time.Now()), true
}

// DownloadEntries returns the retained captures for code, whether it's
// still live or only in cooldown.
func (reg *Registry) DownloadEntries(code string) ([]storage.Entry, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[code]; ok {
		return r.Sink.Entries(), true
	}
	if c, ok := reg.cooldowns[code]; ok {
		return c.sink.Entries(), true
	}
	return nil, false
}

// Run sweeps expired rooms and spent cooldowns on a ticker until Stop is
// called. Intended to run in its own goroutine for the process lifetime.
func (reg *Registry) Run() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			reg.sweepOnce(now)
		case <-reg.stop:
			return
		}
	}
}

// Stop ends the sweep goroutine started by Run.
func (reg *Registry) Stop() {
	close(reg.stop)
}

func (reg *Registry) sweepOnce(now time.Time) {
	reg.mu.Lock()
	var toShutdown []*ptt.Handler
	for code, r := range reg.rooms {
		if !r.Expired(now) {
			continue
		}
		toShutdown = append(toShutdown, r.Handler)
		reg.cooldowns[code] = &cooldownEntry{
			code:      code,
			sink:      r.Sink,
			expiresAt: now.Add(reg.cooldown),
		}
		delete(reg.rooms, code)
	}

	var toClose []*storage.FileSink
	for code, c := range reg.cooldowns {
		if !now.After(c.expiresAt) {
			continue
		}
		if fs, ok := c.sink.(*storage.FileSink); ok {
			toClose = append(toClose, fs)
		}
		delete(reg.cooldowns, code)
	}
	reg.mu.Unlock()

	for _, h := range toShutdown {
		h.Shutdown()
	}
	for _, fs := range toClose {
		fs.Close()
	}
}
