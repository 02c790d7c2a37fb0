package repository_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"safevoice/internal/common/db"
	"safevoice/internal/common/storage"
	"safevoice/internal/grievance/model"
	"safevoice/internal/grievance/repository"
	"safevoice/internal/grievance/service"
	pkgerrors "safevoice/pkg/errors"
	baserepo "safevoice/pkg/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

// setupMySQL starts a MySQL container, applies the migrations and seeds the directory.
func setupMySQL(t *testing.T) *db.MySQL {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("safevoice_test"),
		tcmysql.WithUsername("safevoice"),
		tcmysql.WithPassword("test-password"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate mysql container failed: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	mysqlDB, err := db.NewMySQLWithConfig(&db.MySQLConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mysqlDB.Close() })

	_, err = db.Migrate(mysqlDB)
	require.NoError(t, err)

	seed := []string{
		"INSERT INTO reporters (id, name) VALUES (1, 'Asha Rao'), (2, 'Ben Okafor')",
		"INSERT INTO admins (id, name) VALUES (1, 'Priya Nair')",
		"INSERT INTO resolvers (id, name, designation) VALUES (1, 'Daniel Kim', 'Warden'), (2, 'Mei Tan', 'Dean of Students')",
	}
	for _, stmt := range seed {
		_, err := mysqlDB.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return mysqlDB
}

func mysqlRepositories(mysqlDB *db.MySQL) service.Repositories {
	return service.Repositories{
		Tx:          mysqlDB,
		Issues:      repository.NewIssueRepository(mysqlDB),
		Assignments: repository.NewAssignmentRepository(mysqlDB),
		Solutions:   repository.NewSolutionRepository(mysqlDB),
		StatusLog:   repository.NewStatusLogRepository(mysqlDB),
		Attachments: repository.NewAttachmentRepository(mysqlDB),
		Directory:   repository.NewDirectory(mysqlDB),
	}
}

func TestMySQLLifecycle(t *testing.T) {
	mysqlDB := setupMySQL(t)
	ctx := context.Background()
	repos := mysqlRepositories(mysqlDB)
	objects := storage.NewMemoryStorage()
	lifecycle := service.NewLifecycleService(repos, service.NewAttachmentStore(objects, service.AttachmentStoreOptions{
		Bucket: "evidence",
	}), nil, nil, service.LifecycleOptions{})

	asha := model.Principal{ID: 1, Role: model.RoleReporter}
	priya := model.Principal{ID: 1, Role: model.RoleAdmin}
	daniel := model.Principal{ID: 1, Role: model.RoleResolver}

	png := make([]byte, 512)
	copy(png, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	id, err := lifecycle.SubmitIssue(ctx, asha, service.SubmitInput{
		Title:       "Broken heater",
		Description: "Room 12",
		Category:    "Infrastructure",
		Anonymous:   true,
		Attachments: []model.AttachmentUpload{{FileName: "heater.png", Data: png}},
	})
	require.NoError(t, err)

	require.NoError(t, lifecycle.AssignIssue(ctx, priya, id, 1))
	requireCode(t, lifecycle.AssignIssue(ctx, priya, id, 2), pkgerrors.AlreadyAssigned)
	require.NoError(t, lifecycle.ProposeSolution(ctx, daniel, id, "Replaced"))
	require.NoError(t, lifecycle.ReviseSolution(ctx, daniel, id, "Replaced and tested"))
	require.NoError(t, lifecycle.WithdrawSolution(ctx, daniel, id))
	require.NoError(t, lifecycle.ProposeSolution(ctx, daniel, id, "Replaced again"))

	view, err := lifecycle.GetIssueView(ctx, priya, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, view.Issue.Status)
	assert.Equal(t, model.AnonymousReporterName, view.ReporterName)
	require.Len(t, view.History, 5)
	assert.Equal(t, "Admin (Priya Nair) assigned issue (Broken heater) to Resolver (Daniel Kim - Warden)", view.History[0].Remark)
	assert.Equal(t, model.StatusUpdated, view.History[2].Status)
	require.Len(t, view.Attachments, 1)
	require.NotNil(t, view.Solution)
	assert.Equal(t, "Replaced again", view.Solution.Text)

	reporterItems, err := lifecycle.ListReporterIssues(ctx, asha, baserepo.ListOptions{})
	require.NoError(t, err)
	require.Len(t, reporterItems, 1)
	assert.Equal(t, "Daniel Kim", reporterItems[0].ResolverName)

	require.NoError(t, lifecycle.DeleteIssue(ctx, asha, id))
	exists, err := repos.Issues.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)
	history, err := repos.StatusLog.History(ctx, nil, id)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Zero(t, objects.Len())
}

func TestMySQLConcurrentAssign(t *testing.T) {
	mysqlDB := setupMySQL(t)
	ctx := context.Background()
	repos := mysqlRepositories(mysqlDB)
	lifecycle := service.NewLifecycleService(repos, service.NewAttachmentStore(storage.NewMemoryStorage(), service.AttachmentStoreOptions{
		Bucket: "evidence",
	}), nil, nil, service.LifecycleOptions{})

	id, err := lifecycle.SubmitIssue(ctx, model.Principal{ID: 2, Role: model.RoleReporter}, service.SubmitInput{
		Title: "Noise", Description: "Every night", Category: "Other",
	})
	require.NoError(t, err)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(resolverID int64) {
			defer wg.Done()
			err := lifecycle.AssignIssue(ctx, model.Principal{ID: 1, Role: model.RoleAdmin}, id, resolverID)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(int64(i%2 + 1))
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	history, err := repos.StatusLog.History(ctx, nil, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMySQLTransactionRollback(t *testing.T) {
	mysqlDB := setupMySQL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	issues := repository.NewIssueRepository(mysqlDB)

	var created int64
	err := mysqlDB.Transaction(ctx, func(tx db.Transaction) error {
		id, err := issues.Create(ctx, tx, &model.Issue{ReporterID: 1, Title: "t", Description: "d", Category: "c"})
		if err != nil {
			return err
		}
		created = id
		return pkgerrors.New(pkgerrors.InternalServerError)
	})
	require.Error(t, err)
	require.NotZero(t, created)

	_, err = issues.Get(ctx, nil, created)
	assert.ErrorIs(t, err, repository.ErrIssueNotFound)
}

func TestMySQLTransactionRollsBackOnPanic(t *testing.T) {
	mysqlDB := setupMySQL(t)
	ctx := context.Background()
	issues := repository.NewIssueRepository(mysqlDB)

	id, err := issues.Create(ctx, nil, &model.Issue{ReporterID: 1, Title: "t", Description: "d", Category: "c"})
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = mysqlDB.Transaction(ctx, func(tx db.Transaction) error {
			if _, err := issues.GetForUpdate(ctx, tx, id); err != nil {
				return err
			}
			if err := issues.UpdateStatus(ctx, tx, id, model.StatusAssigned); err != nil {
				return err
			}
			panic("handler crashed")
		})
	})

	issue, err := issues.Get(ctx, nil, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, issue.Status)

	// The row lock was released with the rollback.
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = mysqlDB.Transaction(lockCtx, func(tx db.Transaction) error {
		_, err := issues.GetForUpdate(lockCtx, tx, id)
		return err
	})
	require.NoError(t, err)
}

func requireCode(t *testing.T, err error, code pkgerrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pkgerrors.GetCode(err), "unexpected error: %v", err)
}
