// Package store persists completed simulation run summaries and named
// scenario definitions in BoltDB, so sweeps can be replayed and compared
// across processes. Nothing in here is consulted during a run; the
// simulation core stays purely in-memory.
package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketRuns      = []byte("runs")
	bucketRunIndex  = []byte("run_index")
	bucketScenarios = []byte("scenarios")
)

// RunRecord summarizes one completed simulation run.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Scenario  string    `json:"scenario"`
	Scheduler string    `json:"scheduler"`
	NetModel  string    `json:"net_model"`
	Bandwidth float64   `json:"bandwidth"`
	Workers   int       `json:"workers"`
	Tasks     int       `json:"tasks"`
	Makespan  float64   `json:"makespan"`
	StartedAt time.Time `json:"started_at"`
}

// Scenario is a named, replayable simulation setup: the graph (serialized
// JSON), the worker pool shape, the network, and the schedulers to sweep.
type Scenario struct {
	Name       string   `json:"name"`
	GraphJSON  []byte   `json:"graph_json"`
	Workers    int      `json:"workers"`
	WorkerCPUs int      `json:"worker_cpus"`
	NetModel   string   `json:"net_model"`
	Bandwidth  float64  `json:"bandwidth"`
	Schedulers []string `json:"schedulers"`
}

// RunStore is the BoltDB-backed persistence layer.
type RunStore struct {
	db *bbolt.DB
}

func Open(path string) (*RunStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketRunIndex, bucketScenarios} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error { return s.db.Close() }

// PutRun stores a run record, indexed by (scenario, start time) for ordered
// listing.
func (s *RunStore) PutRun(rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketRuns).Put([]byte(rec.RunID), data); err != nil {
			return err
		}
		indexKey := fmt.Sprintf("%s:%020d:%s", rec.Scenario, rec.StartedAt.UnixNano(), rec.RunID)
		return tx.Bucket(bucketRunIndex).Put([]byte(indexKey), []byte(rec.RunID))
	})
}

// GetRun retrieves a run record by id.
func (s *RunStore) GetRun(runID string) (RunRecord, bool, error) {
	var rec RunRecord
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(runID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("read run record: %w", err)
	}
	return rec, found, nil
}

// ListRuns returns up to limit records for a scenario, oldest first.
func (s *RunStore) ListRuns(scenario string, limit int) ([]RunRecord, error) {
	var out []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		cursor := tx.Bucket(bucketRunIndex).Cursor()
		prefix := []byte(scenario + ":")
		for k, v := cursor.Seek(prefix); k != nil && len(out) < limit; k, v = cursor.Next() {
			if !strings.HasPrefix(string(k), string(prefix)) {
				break
			}
			data := runs.Get(v)
			if data == nil {
				continue
			}
			var rec RunRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// PutScenario stores or replaces a named scenario.
func (s *RunStore) PutScenario(sc Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("scenario needs a name")
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScenarios).Put([]byte(sc.Name), data)
	})
}

// GetScenario retrieves a scenario by name.
func (s *RunStore) GetScenario(name string) (Scenario, bool, error) {
	var sc Scenario
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketScenarios).Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &sc)
	})
	if err != nil {
		return Scenario{}, false, fmt.Errorf("read scenario: %w", err)
	}
	return sc, found, nil
}

// ListScenarios returns every stored scenario name.
func (s *RunStore) ListScenarios() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScenarios).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}
