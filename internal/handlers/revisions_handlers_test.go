package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/plmhub/backend/internal/models"
)

func TestRevisionEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.DB, "eng@plmhub.test", models.UserRoleUser)
	_, stageID := setupProductWithStage(t, env, token)
	stageField := map[string]string{
		"container":   "stage",
		"containerID": fmt.Sprint(stageID),
	}

	resp := performUpload(t, env.App, token, "spec.pdf", "v1", stageField)
	assertStatus(t, resp, http.StatusCreated)
	revisionID := jsonID(t, decodeData(t, resp)["revision"].(map[string]interface{}), "id")

	t.Run("get includes the author", func(t *testing.T) {
		resp := performRequest(t, env.App, http.MethodGet, fmt.Sprintf("/api/revisions/%d", revisionID), token)
		assertStatus(t, resp, http.StatusOK)
		data := decodeData(t, resp)
		if data["revisionNumber"].(float64) != 1 {
			t.Fatalf("expected revision 1, got %v", data["revisionNumber"])
		}
		createdBy, ok := data["createdBy"].(map[string]interface{})
		if !ok {
			t.Fatalf("expected createdBy object, got %v", data["createdBy"])
		}
		if jsonID(t, createdBy, "id") != user.ID {
			t.Fatalf("expected author %d, got %v", user.ID, createdBy["id"])
		}
	})

	t.Run("download-url points at the revision blob", func(t *testing.T) {
		resp := performRequest(t, env.App, http.MethodGet, fmt.Sprintf("/api/revisions/%d/download-url", revisionID), token)
		assertStatus(t, resp, http.StatusOK)
		data := decodeData(t, resp)
		if data["url"] == "" {
			t.Fatal("expected a url")
		}
	})

	t.Run("earlier revision blob survives a re-upload", func(t *testing.T) {
		resp := performUpload(t, env.App, token, "spec.pdf", "v2", stageField)
		assertStatus(t, resp, http.StatusCreated)

		var first models.FileRevision
		if err := env.DB.First(&first, revisionID).Error; err != nil {
			t.Fatalf("failed loading revision: %v", err)
		}
		if _, ok := env.Store.objects[first.StoragePath]; !ok {
			t.Fatalf("expected blob at %s to survive", first.StoragePath)
		}
	})

	t.Run("missing revision", func(t *testing.T) {
		resp := performRequest(t, env.App, http.MethodGet, "/api/revisions/9999", token)
		assertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("requires auth", func(t *testing.T) {
		resp := performRequest(t, env.App, http.MethodGet, fmt.Sprintf("/api/revisions/%d", revisionID), "")
		assertStatus(t, resp, http.StatusUnauthorized)
	})
}
