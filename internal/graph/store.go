// internal/graph/store.go
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/user/forkgraph/internal/event"
	"github.com/user/forkgraph/internal/types"
)

// TimeFormat is the layout for timestamp properties. Unlike time.RFC3339Nano
// it keeps trailing fractional zeros, so lexicographic order on the stored
// strings is chronological. Parse with time.RFC3339Nano, which accepts both.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists events, forks, sessions, and jobs as a graph of entities and
// edges, with two derived in-memory indices rebuilt by full scan at open.
//
// The store does not serialize writers internally. Callers that share one
// Store across goroutines must enforce single-writer/multi-reader discipline
// themselves (the server wraps it in a sync.RWMutex).
type Store struct {
	db     *gorm.DB
	nextID atomic.Uint64

	// byUUID maps event uuid -> entity id. Last writer wins on collision.
	byUUID map[string]EntityID
	// byInvocation maps tool invocation id -> entity id of the event that
	// declared it.
	byInvocation map[string]EntityID
}

type entityRow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement:false"`
	Labels     string `gorm:"not null"`
	Properties string `gorm:"not null"`
}

func (entityRow) TableName() string { return "entities" }

type edgeRow struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement:false"`
	SourceID uint64 `gorm:"index;not null"`
	TargetID uint64 `gorm:"index;not null"`
	Type     string `gorm:"size:32;not null"`
}

func (edgeRow) TableName() string { return "edges" }

// Open opens (or creates) the graph database at path and rebuilds the derived
// indices by scanning the entity table.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open graph db at %s: %w", path, err)
	}
	if err := db.AutoMigrate(&entityRow{}, &edgeRow{}); err != nil {
		return nil, fmt.Errorf("migrate graph db: %w", err)
	}

	s := &Store{
		db:           db,
		byUUID:       make(map[string]EntityID),
		byInvocation: make(map[string]EntityID),
	}
	if err := s.seedIDGenerator(); err != nil {
		return nil, err
	}
	if err := s.rebuildIndices(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

// seedIDGenerator resumes the monotonic id sequence past anything already
// persisted, across both tables. Ids are never reused and never zero.
func (s *Store) seedIDGenerator() error {
	var maxEntity, maxEdge uint64
	if err := s.db.Model(&entityRow{}).Select("COALESCE(MAX(id), 0)").Scan(&maxEntity).Error; err != nil {
		return fmt.Errorf("seed id generator: %w", err)
	}
	if err := s.db.Model(&edgeRow{}).Select("COALESCE(MAX(id), 0)").Scan(&maxEdge).Error; err != nil {
		return fmt.Errorf("seed id generator: %w", err)
	}
	seed := maxEntity
	if maxEdge > seed {
		seed = maxEdge
	}
	s.nextID.Store(seed)
	return nil
}

func (s *Store) newID() uint64 {
	return s.nextID.Add(1)
}

// rebuildIndices derives the uuid and invocation indices from the entity
// table. Only the entity table is authoritative.
func (s *Store) rebuildIndices() error {
	return s.forEachEntity(func(e *Entity) bool {
		if !e.HasLabel(LabelEvent) {
			return true
		}
		s.indexEvent(e)
		return true
	})
}

// indexEvent registers an event entity in both indices.
func (s *Store) indexEvent(e *Entity) {
	if uuid := e.GetString("uuid"); uuid != "" {
		s.byUUID[uuid] = e.ID
	}
	if blob := e.GetString("tool_use_ids"); blob != "" {
		var ids []string
		if err := json.Unmarshal([]byte(blob), &ids); err == nil {
			for _, id := range ids {
				s.byInvocation[id] = e.ID
			}
		}
	}
}

// StoreEvent persists one parsed record as an Event entity, indexes it, and
// links it to prior events. The entity and every resolvable edge commit in a
// single transaction.
//
// If the record's parent tool-use id is not yet in the invocation index (the
// ancestor streamed later, e.g. concurrent sub-agents), no CHILD_OF edge is
// created and none will be added retroactively.
func (s *Store) StoreEvent(rec *event.Record, forkID types.ForkID) (EntityID, error) {
	e := eventEntity(EntityID(s.newID()), rec, forkID)

	edges := make([]edgeRow, 0, 1+len(rec.ToolResults))
	if rec.ParentToolUseID != "" {
		if parent, ok := s.byInvocation[rec.ParentToolUseID]; ok {
			edges = append(edges, edgeRow{
				ID:       s.newID(),
				SourceID: uint64(e.ID),
				TargetID: uint64(parent),
				Type:     EdgeChildOf,
			})
		}
	}
	for _, tr := range rec.ToolResults {
		if target, ok := s.byInvocation[tr.ToolUseID]; ok {
			edges = append(edges, edgeRow{
				ID:       s.newID(),
				SourceID: uint64(e.ID),
				TargetID: uint64(target),
				Type:     EdgeRespondsTo,
			})
		}
	}

	row, err := entityToRow(e)
	if err != nil {
		return 0, err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create event entity: %w", err)
		}
		for i := range edges {
			if err := tx.Create(&edges[i]).Error; err != nil {
				return fmt.Errorf("create %s edge: %w", edges[i].Type, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Indices follow the commit so a rolled-back write leaves them clean.
	s.indexEvent(e)
	return e.ID, nil
}

// eventEntity flattens a record into an Event entity's property map.
// Collections go in as JSON blobs; the raw line is kept verbatim.
func eventEntity(id EntityID, rec *event.Record, forkID types.ForkID) *Entity {
	props := map[string]Value{
		"type": String(string(rec.Type)),
	}
	putString := func(key, val string) {
		if val != "" {
			props[key] = String(val)
		}
	}
	putString("fork_id", string(forkID))
	putString("uuid", rec.UUID)
	putString("session_id", string(rec.SessionID))
	putString("parent_tool_use_id", rec.ParentToolUseID)
	putString("subtype", rec.Subtype)
	putString("text", rec.Text)
	putString("thinking", rec.Thinking)
	putString("result", rec.Result)
	putString("model", rec.Model)
	putString("message_id", rec.MessageID)
	putString("role", rec.Role)

	if len(rec.ToolUses) > 0 {
		if blob, err := json.Marshal(rec.ToolUses); err == nil {
			props["tool_uses"] = String(string(blob))
		}
		if blob, err := json.Marshal(rec.ToolUseIDs()); err == nil {
			props["tool_use_ids"] = String(string(blob))
		}
	}
	if len(rec.ToolResults) > 0 {
		if blob, err := json.Marshal(rec.ToolResults); err == nil {
			props["tool_results"] = String(string(blob))
		}
	}

	if rec.CostUSD != 0 {
		props["cost_usd"] = Float(rec.CostUSD)
	}
	if rec.TotalCostUSD != 0 {
		props["total_cost_usd"] = Float(rec.TotalCostUSD)
	}
	if rec.DurationMS != 0 {
		props["duration_ms"] = Int(rec.DurationMS)
	}
	if rec.NumTurns != 0 {
		props["num_turns"] = Int(rec.NumTurns)
	}

	props["raw"] = String(string(rec.Raw))

	return &Entity{ID: id, Labels: []string{LabelEvent}, Properties: props}
}

// GetEventByUUID returns the event entity stored under the uuid, or nil.
func (s *Store) GetEventByUUID(uuid string) (*Entity, error) {
	id, ok := s.byUUID[uuid]
	if !ok {
		return nil, nil
	}
	return s.getEntity(id)
}

// EventsForSession returns all event entities carrying the session id.
func (s *Store) EventsForSession(sessionID types.SessionID) ([]*Entity, error) {
	var events []*Entity
	err := s.forEachEntity(func(e *Entity) bool {
		if e.HasLabel(LabelEvent) && e.GetString("session_id") == string(sessionID) {
			events = append(events, e)
		}
		return true
	})
	return events, err
}

// QueryEvents returns up to limit event entities, filtered by session id
// prefix and fork id when non-empty. A limit of zero or less means 100.
func (s *Store) QueryEvents(sessionPrefix string, forkID types.ForkID, limit int) ([]*Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []*Entity
	err := s.forEachEntity(func(e *Entity) bool {
		if !e.HasLabel(LabelEvent) {
			return true
		}
		if forkID != "" && e.GetString("fork_id") != string(forkID) {
			return true
		}
		if sessionPrefix != "" && !strings.HasPrefix(e.GetString("session_id"), sessionPrefix) {
			return true
		}
		events = append(events, e)
		return len(events) < limit
	})
	return events, err
}

// ChildEvents returns entities with a CHILD_OF edge pointing at the given
// entity (children point to their parent).
func (s *Store) ChildEvents(id EntityID) ([]*Entity, error) {
	var rows []edgeRow
	if err := s.db.Where("target_id = ? AND type = ?", uint64(id), EdgeChildOf).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load child edges: %w", err)
	}

	children := make([]*Entity, 0, len(rows))
	for _, row := range rows {
		child, err := s.getEntity(EntityID(row.SourceID))
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	return children, nil
}

// EdgesFrom returns all edges whose source is the given entity.
func (s *Store) EdgesFrom(id EntityID) ([]Edge, error) {
	var rows []edgeRow
	if err := s.db.Where("source_id = ?", uint64(id)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	edges := make([]Edge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, Edge{ID: row.ID, Source: EntityID(row.SourceID), Target: EntityID(row.TargetID), Type: row.Type})
	}
	return edges, nil
}

// CountEventsForFork counts stored events attributed to a fork.
func (s *Store) CountEventsForFork(forkID types.ForkID) (int, error) {
	count := 0
	err := s.forEachEntity(func(e *Entity) bool {
		if e.HasLabel(LabelEvent) && e.GetString("fork_id") == string(forkID) {
			count++
		}
		return true
	})
	return count, err
}

// CreateFork persists a Fork entity with its initial property set.
func (s *Store) CreateFork(fork *types.Fork) (EntityID, error) {
	props := map[string]Value{
		"fork_id":    String(string(fork.ID)),
		"status":     String(string(fork.Status)),
		"read":       Bool(fork.Read),
		"created_at": String(fork.CreatedAt.UTC().Format(TimeFormat)),
	}
	if fork.ParentSessionID != "" {
		props["parent_session_id"] = String(string(fork.ParentSessionID))
	}
	if fork.SessionID != "" {
		props["session_id"] = String(string(fork.SessionID))
	}
	if fork.Name != "" {
		props["name"] = String(fork.Name)
	}
	return s.createEntity(&Entity{Labels: []string{LabelFork}, Properties: props})
}

// GetFork returns the fork entity for the fork id, or nil.
func (s *Store) GetFork(forkID types.ForkID) (*Entity, error) {
	return s.findOne(LabelFork, "fork_id", string(forkID))
}

// ListForks returns all fork entities, newest first.
func (s *Store) ListForks() ([]*Entity, error) {
	var forks []*Entity
	err := s.forEachEntity(func(e *Entity) bool {
		if e.HasLabel(LabelFork) {
			forks = append(forks, e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(forks, func(i, j int) bool {
		return forks[i].GetString("created_at") > forks[j].GetString("created_at")
	})
	return forks, nil
}

// LatestFork returns the most recently created fork, or nil if none exist.
func (s *Store) LatestFork() (*Entity, error) {
	forks, err := s.ListForks()
	if err != nil || len(forks) == 0 {
		return nil, err
	}
	return forks[0], nil
}

// UpdateForkStatus moves a fork through its status machine. A terminal
// transition stamps completed_at; sessionID, when non-empty, is recorded.
// The update is read-then-write: concurrent updates to the same fork are
// last-write-wins.
func (s *Store) UpdateForkStatus(forkID types.ForkID, status types.ForkStatus, sessionID types.SessionID) error {
	e, err := s.GetFork(forkID)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("fork %s not found", forkID)
	}

	e.Properties["status"] = String(string(status))
	if sessionID != "" {
		e.Properties["session_id"] = String(string(sessionID))
	}
	if status.Terminal() {
		e.Properties["completed_at"] = String(time.Now().UTC().Format(TimeFormat))
	}
	return s.updateEntity(e)
}

// MarkForkRead flags a fork as read. Unknown forks are a no-op.
func (s *Store) MarkForkRead(forkID types.ForkID) error {
	e, err := s.GetFork(forkID)
	if err != nil || e == nil {
		return err
	}
	e.Properties["read"] = Bool(true)
	return s.updateEntity(e)
}

// MarkAllForksRead flags every unread fork as read, returning how many
// changed.
func (s *Store) MarkAllForksRead() (int, error) {
	forks, err := s.ListForks()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range forks {
		if e.GetBool("read") {
			continue
		}
		e.Properties["read"] = Bool(true)
		if err := s.updateEntity(e); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// CreateSession persists a Session entity and links the fork to it with a
// HAS_SESSION edge, atomically.
func (s *Store) CreateSession(sessionID types.SessionID, forkEntity EntityID) (EntityID, error) {
	e := &Entity{
		ID:     EntityID(s.newID()),
		Labels: []string{LabelSession},
		Properties: map[string]Value{
			"session_id": String(string(sessionID)),
			"created_at": String(time.Now().UTC().Format(TimeFormat)),
		},
	}
	return e.ID, s.createLinked(e, forkEntity, EdgeHasSession)
}

// CreateJob persists a Job entity and links the fork to it with a HAS_JOB
// edge, atomically.
func (s *Store) CreateJob(job *types.Job, forkEntity EntityID) (EntityID, error) {
	e := &Entity{
		ID:     EntityID(s.newID()),
		Labels: []string{LabelJob},
		Properties: map[string]Value{
			"job_id":      String(string(job.ID)),
			"fork_id":     String(string(job.ForkID)),
			"description": String(job.Description),
			"status":      String(string(job.Status)),
			"created_at":  String(job.CreatedAt.UTC().Format(TimeFormat)),
		},
	}
	return e.ID, s.createLinked(e, forkEntity, EdgeHasJob)
}

// UpdateJobStatus mirrors UpdateForkStatus for jobs, optionally recording the
// job's final output.
func (s *Store) UpdateJobStatus(jobID types.JobID, status types.ForkStatus, output string) error {
	e, err := s.findOne(LabelJob, "job_id", string(jobID))
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	e.Properties["status"] = String(string(status))
	if output != "" {
		e.Properties["output"] = String(output)
	}
	if status.Terminal() {
		e.Properties["completed_at"] = String(time.Now().UTC().Format(TimeFormat))
	}
	return s.updateEntity(e)
}

// createLinked commits a new entity plus one edge from `from` to it in a
// single transaction.
func (s *Store) createLinked(e *Entity, from EntityID, edgeType string) error {
	row, err := entityToRow(e)
	if err != nil {
		return err
	}
	edge := edgeRow{
		ID:       s.newID(),
		SourceID: uint64(from),
		TargetID: uint64(e.ID),
		Type:     edgeType,
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create %s entity: %w", e.Labels[0], err)
		}
		if err := tx.Create(&edge).Error; err != nil {
			return fmt.Errorf("create %s edge: %w", edgeType, err)
		}
		return nil
	})
}

func (s *Store) createEntity(e *Entity) (EntityID, error) {
	e.ID = EntityID(s.newID())
	row, err := entityToRow(e)
	if err != nil {
		return 0, err
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("create entity: %w", err)
	}
	return e.ID, nil
}

func (s *Store) updateEntity(e *Entity) error {
	row, err := entityToRow(e)
	if err != nil {
		return err
	}
	if err := s.db.Model(&entityRow{}).Where("id = ?", row.ID).Updates(map[string]any{
		"labels":     row.Labels,
		"properties": row.Properties,
	}).Error; err != nil {
		return fmt.Errorf("update entity %d: %w", e.ID, err)
	}
	return nil
}

func (s *Store) getEntity(id EntityID) (*Entity, error) {
	var row entityRow
	err := s.db.Where("id = ?", uint64(id)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %d: %w", id, err)
	}
	return rowToEntity(row)
}

// findOne scans for the first entity with the label whose string property
// matches. Full scan, same as index rebuild: the entity table is the only
// authoritative source.
func (s *Store) findOne(label, key, value string) (*Entity, error) {
	var found *Entity
	err := s.forEachEntity(func(e *Entity) bool {
		if e.HasLabel(label) && e.GetString(key) == value {
			found = e
			return false
		}
		return true
	})
	return found, err
}

// forEachEntity scans the entity table in id order, stopping early when fn
// returns false.
func (s *Store) forEachEntity(fn func(*Entity) bool) error {
	var rows []entityRow
	if err := s.db.Order("id").Find(&rows).Error; err != nil {
		return fmt.Errorf("scan entities: %w", err)
	}
	for _, row := range rows {
		e, err := rowToEntity(row)
		if err != nil {
			return err
		}
		if !fn(e) {
			return nil
		}
	}
	return nil
}

func entityToRow(e *Entity) (entityRow, error) {
	labels, err := json.Marshal(e.Labels)
	if err != nil {
		return entityRow{}, fmt.Errorf("marshal labels: %w", err)
	}
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return entityRow{}, fmt.Errorf("marshal properties: %w", err)
	}
	return entityRow{ID: uint64(e.ID), Labels: string(labels), Properties: string(props)}, nil
}

func rowToEntity(row entityRow) (*Entity, error) {
	e := &Entity{ID: EntityID(row.ID)}
	if err := json.Unmarshal([]byte(row.Labels), &e.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels for entity %d: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.Properties), &e.Properties); err != nil {
		return nil, fmt.Errorf("unmarshal properties for entity %d: %w", row.ID, err)
	}
	return e, nil
}
