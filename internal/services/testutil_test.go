package services

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/plmhub/backend/internal/database"
	"github.com/plmhub/backend/internal/models"
	"github.com/plmhub/backend/internal/storage"
	"github.com/plmhub/backend/pkg/logger"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	return db
}

func createProduct(t *testing.T, db *gorm.DB, name string) *models.Product {
	t.Helper()
	product := &models.Product{Name: name}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("failed creating product: %v", err)
	}
	return product
}

func createStage(t *testing.T, db *gorm.DB, productID uint, name string) *models.Stage {
	t.Helper()
	stage, err := NewContainerService(db).CreateStage(context.Background(), CreateContainerInput{
		ProductID: productID,
		Name:      name,
	})
	if err != nil {
		t.Fatalf("failed creating stage %q: %v", name, err)
	}
	return stage
}

func createIteration(t *testing.T, db *gorm.DB, productID uint, name string) *models.Iteration {
	t.Helper()
	iteration, err := NewContainerService(db).CreateIteration(context.Background(), CreateContainerInput{
		ProductID: productID,
		Name:      name,
	})
	if err != nil {
		t.Fatalf("failed creating iteration %q: %v", name, err)
	}
	return iteration
}

func stageRef(stage *models.Stage) models.ContainerRef {
	return models.ContainerRef{Kind: models.ContainerKindStage, ID: stage.ID}
}

func iterationRef(iteration *models.Iteration) models.ContainerRef {
	return models.ContainerRef{Kind: models.ContainerKindIteration, ID: iteration.ID}
}

// memoryStore is an in-memory BlobStore for tests.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, hintedPath string, reader io.Reader, _ int64, _ string) (storage.PutResult, error) {
	if m.failPut {
		return storage.PutResult{}, errors.New("store unavailable")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.PutResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[hintedPath] = data
	return storage.PutResult{Path: hintedPath, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *memoryStore) PresignedGetURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s", path), nil
}

func uploadInput(name string, ref models.ContainerRef, body string) UploadInput {
	return UploadInput{
		Name:        name,
		Container:   ref,
		Content:     bytes.NewReader([]byte(body)),
		Size:        int64(len(body)),
		ContentType: "application/octet-stream",
	}
}
