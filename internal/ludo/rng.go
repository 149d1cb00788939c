package ludo

import (
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// RollAudit is the per-roll audit record. Together with the seed secret
// it makes every outcome reproducible for dispute review.
type RollAudit struct {
	MatchID  string    `json:"match_id" bson:"match_id"`
	TurnSeq  uint64    `json:"turn_seq" bson:"turn_seq"`
	Value    int       `json:"value" bson:"value"`
	SeedID   string    `json:"seed_id" bson:"seed_id"`
	RolledAt time.Time `json:"rolled_at" bson:"rolled_at"`
}

// AuditSink receives roll audit records. Failures are logged by callers,
// they never fail the roll itself.
type AuditSink interface {
	RecordRoll(a RollAudit) error
}

type seed struct {
	id     string
	secret []byte
}

// SeedStore holds the server dice seeds. Seeds are never client-supplied
// and rotate on a fixed schedule; old seeds stay resolvable so past
// rolls remain auditable.
type SeedStore struct {
	mu     sync.RWMutex
	active *seed
	byID   map[string]*seed
}

func NewSeedStore() (*SeedStore, error) {
	s := &SeedStore{byID: make(map[string]*seed)}
	if err := s.Rotate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Rotate installs a fresh crypto-random seed as the active one.
func (s *SeedStore) Rotate() error {
	secret := make([]byte, 32)
	if _, err := crand.Read(secret); err != nil {
		return fmt.Errorf("generate dice seed: %w", err)
	}
	id := hex.EncodeToString(secret[:8])

	s.mu.Lock()
	defer s.mu.Unlock()
	sd := &seed{id: id, secret: secret}
	s.active = sd
	s.byID[id] = sd
	return nil
}

// RotateEvery rotates the active seed on a fixed schedule until stop is closed.
func (s *SeedStore) RotateEvery(interval time.Duration, stop <-chan struct{}, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Rotate(); err != nil && onErr != nil {
				onErr(err)
			}
		case <-stop:
			return
		}
	}
}

func (s *SeedStore) activeSeed() (*seed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, ErrRngUnavailable
	}
	return s.active, nil
}

// Verify recomputes the outcome for an audit record. Returns the value
// the seed produces for (matchID, turnSeq).
func (s *SeedStore) Verify(seedID, matchID string, turnSeq uint64) (int, error) {
	s.mu.RLock()
	sd, ok := s.byID[seedID]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("seed %s: %w", seedID, ErrRngUnavailable)
	}
	return outcome(sd.secret, matchID, turnSeq), nil
}

// FairDice derives dice values from the active server seed. Outcomes are
// deterministic per (matchID, turnSeq) and unpredictable without the seed.
type FairDice struct {
	seeds *SeedStore
	audit AuditSink
}

func NewFairDice(seeds *SeedStore, audit AuditSink) *FairDice {
	return &FairDice{seeds: seeds, audit: audit}
}

func (d *FairDice) Roll(matchID string, turnSeq uint64) (int, error) {
	sd, err := d.seeds.activeSeed()
	if err != nil {
		return 0, err
	}
	v := outcome(sd.secret, matchID, turnSeq)
	if d.audit != nil {
		a := RollAudit{MatchID: matchID, TurnSeq: turnSeq, Value: v, SeedID: sd.id, RolledAt: time.Now()}
		if err := d.audit.RecordRoll(a); err != nil {
			return 0, fmt.Errorf("roll audit: %w", err)
		}
	}
	return v, nil
}

// outcome maps HMAC-SHA256(secret, matchID:turnSeq) to a uniform value
// in [1,6] by rejection sampling over 4-byte windows.
func outcome(secret []byte, matchID string, turnSeq uint64) int {
	msg := fmt.Sprintf("%s:%d", matchID, turnSeq)
	counter := uint64(0)
	for {
		mac := hmac.New(sha256.New, secret)
		fmt.Fprintf(mac, "%s:%d", msg, counter)
		sum := mac.Sum(nil)
		for i := 0; i+4 <= len(sum); i += 4 {
			v := binary.BigEndian.Uint32(sum[i : i+4])
			// drop the tiny biased tail of the 32-bit range
			if v < 4294967292 { // 6 * (2^32 / 6)
				return int(v%6) + 1
			}
		}
		counter++
	}
}
