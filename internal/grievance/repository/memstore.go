package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"safevoice/internal/common/db"
	"safevoice/internal/grievance/model"
	baserepo "safevoice/pkg/repository"
)

var errMemoryQuery = errors.New("memory store does not execute SQL")

// MemoryStore is a transactional in-process store backing every grievance repository.
// Transactions are serialized and write to a private copy of the state that replaces
// the committed state only when the transaction succeeds.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	now  func() time.Time

	state memoryState
}

type memoryState struct {
	nextIssueID      int64
	nextSolutionID   int64
	nextLogID        int64
	nextAttachmentID int64

	issues      map[int64]model.Issue
	assignments map[int64]model.Assignment
	solutions   map[int64]model.Solution
	statusLog   []model.StatusLogEntry
	attachments []model.Attachment

	reporters map[int64]string
	admins    map[int64]string
	resolvers map[int64]model.Resolver
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now: func() time.Time { return time.Now().UTC() },
		state: memoryState{
			issues:      make(map[int64]model.Issue),
			assignments: make(map[int64]model.Assignment),
			solutions:   make(map[int64]model.Solution),
			reporters:   make(map[int64]string),
			admins:      make(map[int64]string),
			resolvers:   make(map[int64]model.Resolver),
		},
	}
}

func (s memoryState) clone() memoryState {
	c := s
	c.issues = make(map[int64]model.Issue, len(s.issues))
	for k, v := range s.issues {
		c.issues[k] = v
	}
	c.assignments = make(map[int64]model.Assignment, len(s.assignments))
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	c.solutions = make(map[int64]model.Solution, len(s.solutions))
	for k, v := range s.solutions {
		c.solutions[k] = v
	}
	c.statusLog = append([]model.StatusLogEntry(nil), s.statusLog...)
	c.attachments = append([]model.Attachment(nil), s.attachments...)
	// Directory maps are shared; they are not written inside transactions.
	return c
}

// memoryTx carries the working state of a MemoryStore.Transaction.
type memoryTx struct {
	state *memoryState
}

func (memoryTx) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, errMemoryQuery
}

func (memoryTx) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	return errRow{}
}

func (memoryTx) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	return nil, errMemoryQuery
}

func (memoryTx) Commit() error   { return nil }
func (memoryTx) Rollback() error { return nil }

type errRow struct{}

func (errRow) Scan(dest ...interface{}) error { return errMemoryQuery }

// Transaction runs fn with exclusive write access. Writes made through tx stay
// invisible to other readers until fn returns nil; an error or a panic discards them.
func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.state.clone()
	m.mu.RUnlock()

	if err := fn(&memoryTx{state: &work}); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = work
	m.mu.Unlock()
	return nil
}

// Ping satisfies readiness checks.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// write applies fn to the transaction's working state, or, outside a transaction,
// to the committed state serialized with transactions like an auto-committed statement.
func (m *MemoryStore) write(tx db.Transaction, fn func(s *memoryState) error) error {
	if mtx, ok := tx.(*memoryTx); ok {
		return fn(mtx.state)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.state)
}

// read sees the transaction's own writes when tx is set and committed state otherwise.
func (m *MemoryStore) read(tx db.Transaction, fn func(s *memoryState) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mtx, ok := tx.(*memoryTx); ok {
		return fn(mtx.state)
	}
	return fn(&m.state)
}

// AddReporter seeds the directory.
func (m *MemoryStore) AddReporter(id int64, name string) {
	m.mu.Lock()
	m.state.reporters[id] = name
	m.mu.Unlock()
}

// AddAdmin seeds the directory.
func (m *MemoryStore) AddAdmin(id int64, name string) {
	m.mu.Lock()
	m.state.admins[id] = name
	m.mu.Unlock()
}

// AddResolver seeds the directory.
func (m *MemoryStore) AddResolver(r model.Resolver) {
	m.mu.Lock()
	m.state.resolvers[r.ID] = r
	m.mu.Unlock()
}

func (m *MemoryStore) Issues() IssueRepository           { return memoryIssues{m} }
func (m *MemoryStore) Assignments() AssignmentRepository { return memoryAssignments{m} }
func (m *MemoryStore) Solutions() SolutionRepository     { return memorySolutions{m} }
func (m *MemoryStore) StatusLog() StatusLogRepository    { return memoryStatusLog{m} }
func (m *MemoryStore) Attachments() AttachmentRepository { return memoryAttachments{m} }
func (m *MemoryStore) Directory() Directory              { return memoryDirectory{m} }

type memoryIssues struct{ m *MemoryStore }

func (r memoryIssues) Create(ctx context.Context, tx db.Transaction, issue *model.Issue) (int64, error) {
	if issue == nil {
		return 0, errors.New("issue is nil")
	}
	err := r.m.write(tx, func(s *memoryState) error {
		s.nextIssueID++
		now := r.m.now()
		issue.ID = s.nextIssueID
		if issue.Status == "" {
			issue.Status = model.StatusOpen
		}
		issue.CreatedAt, issue.UpdatedAt = now, now
		s.issues[issue.ID] = *issue
		return nil
	})
	return issue.ID, err
}

func (r memoryIssues) Get(ctx context.Context, tx db.Transaction, issueID int64) (model.Issue, error) {
	var out model.Issue
	err := r.m.read(tx, func(s *memoryState) error {
		issue, ok := s.issues[issueID]
		if !ok {
			return ErrIssueNotFound
		}
		out = issue
		return nil
	})
	return out, err
}

// GetForUpdate needs no extra lock: the enclosing transaction already holds the store exclusively.
func (r memoryIssues) GetForUpdate(ctx context.Context, tx db.Transaction, issueID int64) (model.Issue, error) {
	if tx == nil {
		return model.Issue{}, errors.New("row lock requires a transaction")
	}
	return r.Get(ctx, tx, issueID)
}

func (r memoryIssues) mutate(tx db.Transaction, issueID int64, fn func(issue *model.Issue)) error {
	return r.m.write(tx, func(s *memoryState) error {
		issue, ok := s.issues[issueID]
		if !ok {
			return ErrIssueNotFound
		}
		fn(&issue)
		issue.UpdatedAt = r.m.now()
		s.issues[issueID] = issue
		return nil
	})
}

func (r memoryIssues) UpdateStatus(ctx context.Context, tx db.Transaction, issueID int64, status model.Status) error {
	if !status.Valid() {
		return errors.New("invalid issue status: " + string(status))
	}
	return r.mutate(tx, issueID, func(issue *model.Issue) { issue.Status = status })
}

func (r memoryIssues) UpdateContent(ctx context.Context, tx db.Transaction, issueID int64, title, description, category string) error {
	return r.mutate(tx, issueID, func(issue *model.Issue) {
		issue.Title, issue.Description, issue.Category = title, description, category
	})
}

func (r memoryIssues) SetAcknowledged(ctx context.Context, tx db.Transaction, issueID int64) error {
	return r.mutate(tx, issueID, func(issue *model.Issue) { issue.Acknowledged = true })
}

func (r memoryIssues) Delete(ctx context.Context, tx db.Transaction, issueID int64) error {
	return r.m.write(tx, func(s *memoryState) error {
		if _, ok := s.issues[issueID]; !ok {
			return ErrIssueNotFound
		}
		delete(s.issues, issueID)
		return nil
	})
}

func (r memoryIssues) Exists(ctx context.Context, issueID int64) (bool, error) {
	var ok bool
	err := r.m.read(nil, func(s *memoryState) error {
		_, ok = s.issues[issueID]
		return nil
	})
	return ok, err
}

// sortedIssues returns issues newest first, matching the SQL ordering.
func (s *memoryState) sortedIssues(keep func(model.Issue) bool) []model.Issue {
	out := make([]model.Issue, 0, len(s.issues))
	for _, issue := range s.issues {
		if keep == nil || keep(issue) {
			out = append(out, issue)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r memoryIssues) ListByReporter(ctx context.Context, reporterID int64, opts baserepo.ListOptions) ([]model.ReporterIssue, error) {
	var out []model.ReporterIssue
	err := r.m.read(nil, func(s *memoryState) error {
		issues := s.sortedIssues(func(i model.Issue) bool { return i.ReporterID == reporterID })
		start, end := opts.Window(len(issues))
		for _, issue := range issues[start:end] {
			item := model.ReporterIssue{Issue: issue}
			if sol, ok := s.solutions[issue.ID]; ok {
				resolvedAt := sol.ResolvedAt
				item.SolutionText = sol.Text
				item.ResolvedAt = &resolvedAt
				item.ResolverName = s.resolvers[sol.ResolverID].Name
			}
			out = append(out, item)
		}
		return nil
	})
	return out, err
}

func (r memoryIssues) ListAll(ctx context.Context, opts baserepo.ListOptions) ([]model.AdminIssue, error) {
	var out []model.AdminIssue
	err := r.m.read(nil, func(s *memoryState) error {
		issues := s.sortedIssues(nil)
		start, end := opts.Window(len(issues))
		for _, issue := range issues[start:end] {
			_, assigned := s.assignments[issue.ID]
			out = append(out, model.AdminIssue{
				Issue:        issue,
				ReporterName: s.reporters[issue.ReporterID],
				Assigned:     assigned,
			})
		}
		return nil
	})
	return out, err
}

func (r memoryIssues) ListUnassigned(ctx context.Context) ([]model.AssignableIssue, error) {
	var out []model.AssignableIssue
	err := r.m.read(nil, func(s *memoryState) error {
		for _, issue := range s.sortedIssues(func(i model.Issue) bool {
			_, assigned := s.assignments[i.ID]
			return !assigned
		}) {
			out = append(out, model.AssignableIssue{ID: issue.ID, Title: issue.Title, CreatedAt: issue.CreatedAt})
		}
		return nil
	})
	return out, err
}

type memoryAssignments struct{ m *MemoryStore }

func (r memoryAssignments) Create(ctx context.Context, tx db.Transaction, issueID, resolverID int64) (model.Assignment, error) {
	var out model.Assignment
	err := r.m.write(tx, func(s *memoryState) error {
		if _, ok := s.assignments[issueID]; ok {
			return ErrAlreadyAssigned
		}
		out = model.Assignment{IssueID: issueID, ResolverID: resolverID, AssignedAt: r.m.now()}
		s.assignments[issueID] = out
		return nil
	})
	return out, err
}

func (r memoryAssignments) Get(ctx context.Context, tx db.Transaction, issueID int64) (model.Assignment, error) {
	var out model.Assignment
	err := r.m.read(tx, func(s *memoryState) error {
		a, ok := s.assignments[issueID]
		if !ok {
			return ErrAssignmentNotFound
		}
		out = a
		return nil
	})
	return out, err
}

func (r memoryAssignments) ListByResolver(ctx context.Context, resolverID int64, opts baserepo.ListOptions) ([]model.ResolverIssue, error) {
	var out []model.ResolverIssue
	err := r.m.read(nil, func(s *memoryState) error {
		for issueID, a := range s.assignments {
			if a.ResolverID != resolverID {
				continue
			}
			issue, ok := s.issues[issueID]
			if !ok {
				continue
			}
			item := model.ResolverIssue{
				Issue:        issue,
				ReporterName: s.reporters[issue.ReporterID],
				AssignedAt:   a.AssignedAt,
			}
			if sol, ok := s.solutions[issueID]; ok {
				item.SolutionID = sol.ID
				item.SolutionText = sol.Text
			}
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.After(out[j].AssignedAt)
		}
		return out[i].Issue.ID > out[j].Issue.ID
	})
	start, end := opts.Window(len(out))
	return out[start:end], nil
}

func (r memoryAssignments) DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error {
	return r.m.write(tx, func(s *memoryState) error {
		delete(s.assignments, issueID)
		return nil
	})
}

type memorySolutions struct{ m *MemoryStore }

func (r memorySolutions) Create(ctx context.Context, tx db.Transaction, solution *model.Solution) (int64, error) {
	if solution == nil {
		return 0, errors.New("solution is nil")
	}
	err := r.m.write(tx, func(s *memoryState) error {
		if _, ok := s.solutions[solution.IssueID]; ok {
			return ErrSolutionExists
		}
		s.nextSolutionID++
		now := r.m.now()
		solution.ID = s.nextSolutionID
		solution.ResolvedAt, solution.UpdatedAt = now, now
		s.solutions[solution.IssueID] = *solution
		return nil
	})
	return solution.ID, err
}

func (r memorySolutions) GetByIssue(ctx context.Context, tx db.Transaction, issueID int64) (model.Solution, error) {
	var out model.Solution
	err := r.m.read(tx, func(s *memoryState) error {
		sol, ok := s.solutions[issueID]
		if !ok {
			return ErrSolutionNotFound
		}
		out = sol
		return nil
	})
	return out, err
}

func (r memorySolutions) UpdateText(ctx context.Context, tx db.Transaction, issueID, resolverID int64, text string) error {
	return r.m.write(tx, func(s *memoryState) error {
		sol, ok := s.solutions[issueID]
		if !ok || sol.ResolverID != resolverID {
			return ErrSolutionNotFound
		}
		sol.Text = text
		sol.UpdatedAt = r.m.now()
		s.solutions[issueID] = sol
		return nil
	})
}

func (r memorySolutions) Delete(ctx context.Context, tx db.Transaction, issueID, resolverID int64) error {
	return r.m.write(tx, func(s *memoryState) error {
		sol, ok := s.solutions[issueID]
		if !ok || sol.ResolverID != resolverID {
			return ErrSolutionNotFound
		}
		delete(s.solutions, issueID)
		return nil
	})
}

func (r memorySolutions) DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error {
	return r.m.write(tx, func(s *memoryState) error {
		delete(s.solutions, issueID)
		return nil
	})
}

type memoryStatusLog struct{ m *MemoryStore }

func (r memoryStatusLog) Record(ctx context.Context, tx db.Transaction, entry *model.StatusLogEntry) error {
	if entry == nil {
		return errors.New("status log entry is nil")
	}
	return r.m.write(tx, func(s *memoryState) error {
		s.nextLogID++
		entry.ID = s.nextLogID
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = r.m.now()
		}
		s.statusLog = append(s.statusLog, *entry)
		return nil
	})
}

func (r memoryStatusLog) History(ctx context.Context, tx db.Transaction, issueID int64) ([]model.StatusLogEntry, error) {
	var out []model.StatusLogEntry
	err := r.m.read(tx, func(s *memoryState) error {
		for _, e := range s.statusLog {
			if e.IssueID == issueID {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r memoryStatusLog) DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error {
	return r.m.write(tx, func(s *memoryState) error {
		kept := s.statusLog[:0]
		for _, e := range s.statusLog {
			if e.IssueID != issueID {
				kept = append(kept, e)
			}
		}
		s.statusLog = kept
		return nil
	})
}

type memoryAttachments struct{ m *MemoryStore }

func (r memoryAttachments) CreateBatch(ctx context.Context, tx db.Transaction, attachments []model.Attachment) error {
	return r.m.write(tx, func(s *memoryState) error {
		seen := make(map[string]struct{}, len(s.attachments))
		for _, a := range s.attachments {
			seen[a.ObjectKey] = struct{}{}
		}
		now := r.m.now()
		for _, a := range attachments {
			if _, dup := seen[a.ObjectKey]; dup {
				return errors.New("duplicate attachment object key: " + a.ObjectKey)
			}
			seen[a.ObjectKey] = struct{}{}
			s.nextAttachmentID++
			a.ID = s.nextAttachmentID
			a.CreatedAt = now
			s.attachments = append(s.attachments, a)
		}
		return nil
	})
}

func (r memoryAttachments) ListByIssue(ctx context.Context, tx db.Transaction, issueID int64) ([]model.Attachment, error) {
	var out []model.Attachment
	err := r.m.read(tx, func(s *memoryState) error {
		for _, a := range s.attachments {
			if a.IssueID == issueID {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (r memoryAttachments) DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error {
	return r.m.write(tx, func(s *memoryState) error {
		kept := s.attachments[:0]
		for _, a := range s.attachments {
			if a.IssueID != issueID {
				kept = append(kept, a)
			}
		}
		s.attachments = kept
		return nil
	})
}

type memoryDirectory struct{ m *MemoryStore }

func (d memoryDirectory) ReporterName(ctx context.Context, tx db.Transaction, reporterID int64) (string, error) {
	return d.name(tx, func(s *memoryState) (string, bool) {
		name, ok := s.reporters[reporterID]
		return name, ok
	})
}

func (d memoryDirectory) AdminName(ctx context.Context, tx db.Transaction, adminID int64) (string, error) {
	return d.name(tx, func(s *memoryState) (string, bool) {
		name, ok := s.admins[adminID]
		return name, ok
	})
}

func (d memoryDirectory) name(tx db.Transaction, lookup func(s *memoryState) (string, bool)) (string, error) {
	var out string
	err := d.m.read(tx, func(s *memoryState) error {
		name, ok := lookup(s)
		if !ok {
			return ErrPrincipalNotFound
		}
		out = name
		return nil
	})
	return out, err
}

func (d memoryDirectory) Resolver(ctx context.Context, tx db.Transaction, resolverID int64) (model.Resolver, error) {
	var out model.Resolver
	err := d.m.read(tx, func(s *memoryState) error {
		r, ok := s.resolvers[resolverID]
		if !ok {
			return ErrResolverNotFound
		}
		out = r
		return nil
	})
	return out, err
}

func (d memoryDirectory) ListResolvers(ctx context.Context) ([]model.Resolver, error) {
	var out []model.Resolver
	err := d.m.read(nil, func(s *memoryState) error {
		for _, r := range s.resolvers {
			out = append(out, r)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}
