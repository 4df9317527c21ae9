package handlers

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/plmhub/backend/internal/models"
)

func TestRegister(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("creates a user and returns a token", func(t *testing.T) {
		resp := performJSONRequest(t, env.App, http.MethodPost, "/api/auth/register", "", fiber.Map{
			"email":     "alice@plmhub.test",
			"password":  "password123",
			"firstName": "Alice",
			"lastName":  "Smith",
		})
		assertStatus(t, resp, http.StatusCreated)
		data := decodeData(t, resp)
		if data["token"] == "" {
			t.Fatal("expected a token")
		}
		user, ok := data["user"].(map[string]interface{})
		if !ok {
			t.Fatalf("expected user object, got %v", data["user"])
		}
		if user["email"] != "alice@plmhub.test" {
			t.Fatalf("unexpected email: %v", user["email"])
		}
		if _, leaked := user["passwordHash"]; leaked {
			t.Fatal("password hash must not be serialized")
		}
	})

	t.Run("rejects a short password", func(t *testing.T) {
		resp := performJSONRequest(t, env.App, http.MethodPost, "/api/auth/register", "", fiber.Map{
			"email":    "bob@plmhub.test",
			"password": "short",
		})
		assertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("rejects an invalid email", func(t *testing.T) {
		resp := performJSONRequest(t, env.App, http.MethodPost, "/api/auth/register", "", fiber.Map{
			"email":    "not-an-email",
			"password": "password123",
		})
		assertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("rejects a duplicate email", func(t *testing.T) {
		resp := performJSONRequest(t, env.App, http.MethodPost, "/api/auth/register", "", fiber.Map{
			"email":    "ALICE@plmhub.test",
			"password": "password123",
		})
		assertStatus(t, resp, http.StatusConflict)
	})
}

func TestLogin(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.DB, "carol@plmhub.test", models.UserRoleUser)

	t.Run("valid credentials", func(t *testing.T) {
		resp := performJSONRequest(t, env.App, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "carol@plmhub.test",
			"password": "password123",
		})
		assertStatus(t, resp, http.StatusOK)
		data := decodeData(t, resp)
		if data["token"] == "" {
			t.Fatal("expected a token")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := performJSONRequest(t, env.App, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "carol@plmhub.test",
			"password": "wrong-password",
		})
		assertStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := performJSONRequest(t, env.App, http.MethodPost, "/api/auth/login", "", fiber.Map{
			"email":    "nobody@plmhub.test",
			"password": "password123",
		})
		assertStatus(t, resp, http.StatusUnauthorized)
	})
}

func TestMe(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.DB, "dave@plmhub.test", models.UserRoleUser)

	t.Run("returns the authenticated user", func(t *testing.T) {
		resp := performRequest(t, env.App, http.MethodGet, "/api/auth/me", token)
		assertStatus(t, resp, http.StatusOK)
		data := decodeData(t, resp)
		if jsonID(t, data, "id") != user.ID {
			t.Fatalf("expected user %d, got %v", user.ID, data["id"])
		}
	})

	t.Run("rejects a missing token", func(t *testing.T) {
		resp := performRequest(t, env.App, http.MethodGet, "/api/auth/me", "")
		assertStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("rejects a garbage token", func(t *testing.T) {
		resp := performRequest(t, env.App, http.MethodGet, "/api/auth/me", "not-a-jwt")
		assertStatus(t, resp, http.StatusUnauthorized)
	})
}
