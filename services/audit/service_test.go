package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"github.com/upb/authgate/services"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := m.Called(ctx, log)
	m.insertedLogs = append(m.insertedLogs, log)
	return args.Error(0)
}

func (m *MockAuditRepository) InsertBatch(ctx context.Context, logs []*models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := m.Called(ctx, logs)
	m.insertedLogs = append(m.insertedLogs, logs...)
	return args.Error(0)
}

func (m *MockAuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	args := m.Called(ctx, id)
	if log := args.Get(0); log != nil {
		return log.(*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	args := m.Called(ctx, filter)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error) {
	args := m.Called(ctx, requestID)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditLog, len(m.insertedLogs))
	copy(out, m.insertedLogs)
	return out
}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service := NewAuditService(mockRepo, zaptest.NewLogger(t), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, service.Start(), "cannot start twice")

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)
	assert.Error(t, service.Stop(time.Second), "cannot stop twice")
}

func TestAuditService_Record(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zaptest.NewLogger(t), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	log := models.NewAuditLog(models.AuditActionOpaqueIssued, "svc1", time.Now())
	require.NoError(t, service.Record(log))

	require.NoError(t, service.Stop(5*time.Second))

	inserted := mockRepo.GetInsertedLogs()
	require.Len(t, inserted, 1)
	assert.Equal(t, "svc1", inserted[0].Identity)
	assert.Equal(t, models.AuditActionOpaqueIssued, inserted[0].Action)
}

func TestAuditService_StopFlushesPending(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 1, MaxBatch: 10})
	require.NoError(t, service.Start())

	for i := 0; i < 25; i++ {
		require.NoError(t, service.Record(models.NewAuditLog(models.AuditActionLoginSucceeded, "admin", time.Now())))
	}
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, mockRepo.GetInsertedLogs(), 25)
}

func TestAuditService_RecordNotRunning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	service := NewAuditService(new(MockAuditRepository), zap.New(core), DefaultConfig())
	log := models.NewAuditLog(models.AuditActionLoginFailed, "x", time.Now())

	assert.Error(t, service.Record(log), "not started")

	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(time.Second))
	assert.Error(t, service.Record(log), "stopped")

	dropped := logs.FilterMessage("audit service not running, dropping event").All()
	require.Len(t, dropped, 2)
	assert.Equal(t, "login_failed", dropped[0].ContextMap()["action"])
	assert.Equal(t, 2, service.GetStats().Dropped)
}

// blockingRepo holds every insert until released
type blockingRepo struct {
	MockAuditRepository
	release chan struct{}
}

func (b *blockingRepo) Insert(ctx context.Context, log *models.AuditLog) error {
	<-b.release
	return nil
}

func (b *blockingRepo) InsertBatch(ctx context.Context, logs []*models.AuditLog) error {
	<-b.release
	return nil
}

func TestAuditService_DropsWhenFull(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	service := NewAuditService(repo, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1, MaxBatch: 1})
	require.NoError(t, service.Start())

	newLog := func() *models.AuditLog {
		return models.NewAuditLog(models.AuditActionAccessDenied, "x", time.Now())
	}

	// the worker takes one event and blocks, the buffer takes one more
	require.NoError(t, service.Record(newLog()))
	require.Eventually(t, func() bool { return service.GetStats().PendingEvents == 0 }, time.Second, time.Millisecond)
	require.NoError(t, service.Record(newLog()))

	err := service.Record(newLog())
	assert.Error(t, err)
	assert.Equal(t, 1, service.GetStats().Dropped)

	close(repo.release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_PersistErrorIsLogged(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down"))

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1, MaxBatch: 1})
	require.NoError(t, service.Start())
	require.NoError(t, service.Record(models.NewAuditLog(models.AuditActionLoginFailed, "x", time.Now())))
	require.NoError(t, service.Stop(5*time.Second))

	mockRepo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestAuditService_PingAndQuery(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Ping", mock.Anything).Return(nil)
	filter := repositories.AuditFilter{Identity: "admin"}
	mockRepo.On("List", mock.Anything, filter).Return([]*models.AuditLog{
		models.NewAuditLog(models.AuditActionLoginSucceeded, "admin", time.Now()),
	}, nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())

	assert.NoError(t, service.Ping(context.Background()))
	logs, err := service.Query(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	mockRepo.AssertExpectations(t)
}

func TestAuditService_Get(t *testing.T) {
	found := models.NewAuditLog(models.AuditActionOpaqueIssued, "admin", time.Now())
	missing := uuid.New()
	broken := uuid.New()

	mockRepo := new(MockAuditRepository)
	mockRepo.On("GetByID", mock.Anything, found.ID).Return(found, nil)
	mockRepo.On("GetByID", mock.Anything, missing).Return(nil, repositories.ErrNotFound)
	mockRepo.On("GetByID", mock.Anything, broken).Return(nil, errors.New("connection reset"))

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())
	ctx := context.Background()

	log, err := service.Get(ctx, found.ID)
	require.NoError(t, err)
	assert.Equal(t, found.ID, log.ID)

	_, err = service.Get(ctx, missing)
	assert.True(t, services.IsNotFoundError(err))
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = service.Get(ctx, broken)
	assert.True(t, services.IsInternalError(err))
}

func TestAuditService_QueryError(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("List", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())

	_, err := service.Query(context.Background(), repositories.AuditFilter{})
	assert.True(t, services.IsInternalError(err))
}
