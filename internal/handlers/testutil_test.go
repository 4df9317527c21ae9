package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/plmhub/backend/internal/database"
	"github.com/plmhub/backend/internal/middleware"
	"github.com/plmhub/backend/internal/models"
	"github.com/plmhub/backend/internal/services"
	"github.com/plmhub/backend/internal/storage"
	"github.com/plmhub/backend/pkg/logger"
	"github.com/plmhub/backend/pkg/utils"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

type testEnv struct {
	App   *fiber.App
	DB    *gorm.DB
	Store *memoryStore
}

// setupTestEnv builds a Fiber app with the full route table wired to an
// in-memory database and blob store.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
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

	store := newMemoryStore()

	containerService := services.NewContainerService(db)
	uploadService := services.NewUploadService(db, store)

	authHandler := NewAuthHandler(db)
	productsHandler := NewProductsHandler(db, store)
	containersHandler := NewContainersHandler(db, containerService, store)
	filesHandler := NewFilesHandler(db, store, uploadService)
	revisionsHandler := NewRevisionsHandler(db, store)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New()

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	productRoutes := api.Group("/products", authMiddleware.RequireAuth)
	productRoutes.Post("/", productsHandler.Create)
	productRoutes.Get("/", productsHandler.List)
	productRoutes.Get("/:id", productsHandler.Get)
	productRoutes.Put("/:id", productsHandler.Update)
	productRoutes.Delete("/:id", productsHandler.Delete)
	productRoutes.Get("/:id/stages", productsHandler.ListStages)
	productRoutes.Get("/:id/iterations", productsHandler.ListIterations)
	productRoutes.Get("/:id/files", productsHandler.ListFiles)

	stageRoutes := api.Group("/stages", authMiddleware.RequireAuth)
	stageRoutes.Post("/", containersHandler.CreateStage)
	stageRoutes.Get("/:id", containersHandler.GetStage)
	stageRoutes.Put("/:id", containersHandler.UpdateStage)
	stageRoutes.Delete("/:id", containersHandler.DeleteStage)

	iterationRoutes := api.Group("/iterations", authMiddleware.RequireAuth)
	iterationRoutes.Post("/", containersHandler.CreateIteration)
	iterationRoutes.Get("/:id", containersHandler.GetIteration)
	iterationRoutes.Put("/:id", containersHandler.UpdateIteration)
	iterationRoutes.Delete("/:id", containersHandler.DeleteIteration)

	fileRoutes := api.Group("/files")
	fileRoutes.Post("/upload", authMiddleware.OptionalAuth, filesHandler.Upload)
	fileRoutes.Get("/", authMiddleware.RequireAuth, filesHandler.List)
	fileRoutes.Get("/:id", authMiddleware.RequireAuth, filesHandler.Get)
	fileRoutes.Get("/:id/children", authMiddleware.RequireAuth, filesHandler.ListChildren)
	fileRoutes.Get("/:id/revisions", authMiddleware.RequireAuth, filesHandler.ListRevisions)
	fileRoutes.Get("/:id/download", authMiddleware.RequireAuth, filesHandler.Download)
	fileRoutes.Get("/:id/download-url", authMiddleware.RequireAuth, filesHandler.DownloadURL)
	fileRoutes.Put("/:id", authMiddleware.RequireAuth, filesHandler.Update)
	fileRoutes.Delete("/:id", authMiddleware.RequireAuth, filesHandler.Delete)

	revisionRoutes := api.Group("/revisions", authMiddleware.RequireAuth)
	revisionRoutes.Get("/:id", revisionsHandler.Get)
	revisionRoutes.Get("/:id/download-url", revisionsHandler.DownloadURL)

	return &testEnv{App: app, DB: db, Store: store}
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.UserRole) (*models.User, string) {
	t.Helper()
	hash, err := utils.HashPassword("password123")
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user: %v", err)
	}
	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}
	return user, token
}

func performRequest(t *testing.T, app *fiber.App, method, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed marshaling body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

// performUpload posts a multipart form to /api/files/upload. The content
// becomes the "file" part; fields fill in the rest of the form.
func performUpload(t *testing.T, app *fiber.App, token, filename, content string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed creating form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed writing form file: %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing form field %q: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload request failed: %v", err)
	}
	return resp
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding response body: %v", err)
	}
	return body
}

// decodeData asserts a success envelope and returns its data object.
func decodeData(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := decodeJSONMap(t, resp)
	if success, _ := body["success"].(bool); !success {
		t.Fatalf("expected success envelope, got %v", body)
	}
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object, got %v", body["data"])
	}
	return data
}

// decodeDataList asserts a success envelope and returns its data array.
func decodeDataList(t *testing.T, resp *http.Response) []interface{} {
	t.Helper()
	body := decodeJSONMap(t, resp)
	if success, _ := body["success"].(bool); !success {
		t.Fatalf("expected success envelope, got %v", body)
	}
	data, ok := body["data"].([]interface{})
	if !ok {
		t.Fatalf("expected data array, got %v", body["data"])
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d (body: %s)", want, resp.StatusCode, body)
	}
}

func jsonID(t *testing.T, data map[string]interface{}, key string) uint {
	t.Helper()
	value, ok := data[key].(float64)
	if !ok {
		t.Fatalf("expected numeric %q, got %v", key, data[key])
	}
	return uint(value)
}

// memoryStore is an in-memory BlobStore for handler tests.
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
