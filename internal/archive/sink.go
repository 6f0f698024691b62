// Package archive writes committed events and ledger snapshots to blob
// storage as immutable objects.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"distributor/internal/blob"
	"distributor/internal/metrics"
	"distributor/pkg/domain"
)

const (
	eventsPrefix      = "events/"
	snapshotsPrefix   = "snapshots/"
	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"
)

// SinkConfig configures an event archive sink.
type SinkConfig struct {
	Logger *slog.Logger
	Store  blob.Store
	// Topics limits archiving to the named topics; empty archives everything.
	Topics []string
}

// Validate checks required fields.
func (cfg *SinkConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("blob store is required")
	}
	return nil
}

// Sink archives each delivered batch as one newline-delimited JSON object.
type Sink struct {
	log    *slog.Logger
	store  blob.Store
	topics map[string]struct{}
}

// NewSink constructs an archive sink.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sink{log: cfg.Logger, store: cfg.Store}
	if len(cfg.Topics) > 0 {
		s.topics = make(map[string]struct{}, len(cfg.Topics))
		for _, t := range cfg.Topics {
			s.topics[t] = struct{}{}
		}
	}
	return s, nil
}

// Name identifies the sink in metrics and logs.
func (s *Sink) Name() string { return "archive" }

// Deliver writes the matching events of one committed invocation.
func (s *Sink) Deliver(ctx context.Context, events []domain.Event) error {
	batch := s.filter(events)
	if len(batch) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range batch {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode event %s: %w", e.ID, err)
		}
	}
	key := EventBatchKey(batch[0])
	_, err := s.store.Put(ctx, key, &buf, blob.PutOptions{
		ContentType: contentTypeNDJSON,
		Metadata: map[string]string{
			"height": strconv.FormatUint(uint64(batch[0].Height), 10),
			"events": strconv.Itoa(len(batch)),
		},
	})
	metrics.RecordArchiveWrite("events", err)
	if err != nil {
		return fmt.Errorf("archive events: %w", err)
	}
	s.log.Debug("archive: events written", "key", key, "events", len(batch))
	return nil
}

func (s *Sink) filter(events []domain.Event) []domain.Event {
	if s.topics == nil {
		return events
	}
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if _, ok := s.topics[e.Topic]; ok {
			out = append(out, e)
		}
	}
	return out
}

// EventBatchKey names the object holding a batch whose first event is first.
// Zero-padded heights keep keys in ledger order.
func EventBatchKey(first domain.Event) string {
	return fmt.Sprintf("%s%010d/%s.ndjson", eventsPrefix, first.Height, first.ID)
}

// ReadEvents loads every archived event, ordered by height and then by
// position within its batch.
func ReadEvents(ctx context.Context, store blob.Store) ([]domain.Event, error) {
	infos, err := store.List(ctx, eventsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	var out []domain.Event
	for _, info := range infos {
		batch, err := readBatch(ctx, store, info.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out, nil
}

func readBatch(ctx context.Context, store blob.Store, key string) ([]domain.Event, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	var out []domain.Event
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e domain.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return out, nil
}
