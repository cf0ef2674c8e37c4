package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"deckforge.app/deck-backend/internal/auth"
	"deckforge.app/deck-backend/internal/config"
	"deckforge.app/deck-backend/internal/core"
	"deckforge.app/deck-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	response string
	err      error
}

func (m *scriptedModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	return m.response, m.err
}

type fakeResolver struct{}

func (fakeResolver) ResolveImage(ctx context.Context, query string, index int) (core.ImageResolution, bool) {
	return core.ImageResolution{URL: fmt.Sprintf("http://images.test/%d", index), Source: core.SourcePrimary}, true
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, imageURL string, slot int) (string, error) {
	return fmt.Sprintf("/static/uploads/slide_%d_1.jpg", slot), nil
}

const beesDeckJSON = `{
  "slides": [
    {"title": "Intro to Bees", "content": ["Bees pollinate"], "image_search_query": "honey bee flower", "image_position": "background"},
    {"title": "The Hive", "content": ["Queens", "Workers"], "image_search_query": "beehive honeycomb", "image_position": "right"}
  ],
  "message": "Here are your slides!"
}`

type testEnv struct {
	handler http.Handler
	model   *scriptedModel
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	config.AppConfig = config.Config{
		JWTSecret:      "test-secret",
		MaxUploadBytes: 16 * 1024 * 1024,
		AllowedExtensions: map[string]bool{
			"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true, "webp": true,
		},
	}

	dbStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	hash, err := auth.HashPassword("secret-pass")
	require.NoError(t, err)
	_, err = dbStore.CreateUser("alice", "alice@example.com", hash)
	require.NoError(t, err)

	token, err := auth.GenerateJWT("alice")
	require.NoError(t, err)

	model := &scriptedModel{response: beesDeckJSON}
	slideService := core.NewSlideService(model)
	deckService := core.NewDeckService(dbStore, slideService, fakeResolver{}, fakeFetcher{})

	uploadDir := t.TempDir()
	uploadService, err := core.NewUploadService(uploadDir, config.AppConfig.AllowedExtensions)
	require.NoError(t, err)

	apiHandler := NewAPIHandler(deckService, uploadService)
	return &testEnv{
		handler: NewRouter(apiHandler, uploadDir, true),
		model:   model,
		token:   token,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("signup", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/signup", map[string]string{
			"username": "bob", "email": "bob@example.com", "password": "pw",
		}, false)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/signup", map[string]string{
			"username": "bob", "email": "bob2@example.com", "password": "pw",
		}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/signup", map[string]string{"username": "x"}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("login returns token", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/login", map[string]string{
			"username": "alice", "password": "secret-pass",
		}, false)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.NotEmpty(t, body["token"])
		assert.Equal(t, "alice", body["username"])
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/login", map[string]string{
			"username": "alice", "password": "wrong",
		}, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestChatGeneratesDeck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/chat", map[string]interface{}{"prompt": "Intro to bees"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	slides, ok := body["slides"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, slides)
	assert.NotEmpty(t, body["message"])
	assert.NotEmpty(t, body["presentation_id"])

	for i, raw := range slides {
		slide, ok := raw.(map[string]interface{})
		require.True(t, ok)
		_, ok = slide["has_image"].(bool)
		assert.True(t, ok, "slide %d must carry a boolean has_image", i)
	}
}

func TestChatRequiresAuthAndPrompt(t *testing.T) {
	env := newTestEnv(t)

	t.Run("no token", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/chat", map[string]string{"prompt": "x"}, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no prompt", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/chat", map[string]string{}, true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No prompt provided", decodeBody(t, rec)["error"])
	})
}

func TestUpdatePreservesExistingSlides(t *testing.T) {
	env := newTestEnv(t)
	env.model.response = `{
	  "slides": [
	    {"title": "One", "content": ["a"]},
	    {"title": "Two", "content": ["b"]},
	    {"title": "Three", "content": ["c"]},
	    {"title": "Honey Production", "content": ["nectar to honey"]}
	  ],
	  "message": "Added a slide about honey production"
	}`

	payload := map[string]interface{}{
		"prompt": "add a slide about honey production",
		"slides": []map[string]interface{}{
			{"title": "One", "content": []string{"a"}},
			{"title": "Two", "content": []string{"b"}},
			{"title": "Three", "content": []string{"c"}},
		},
	}

	// Open endpoint policy: no token required.
	rec := env.do(t, http.MethodPost, "/update", payload, false)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	slides, ok := body["slides"].([]interface{})
	require.True(t, ok)
	require.GreaterOrEqual(t, len(slides), 3)

	var titles []string
	for _, raw := range slides {
		titles = append(titles, raw.(map[string]interface{})["title"].(string))
	}
	assert.Contains(t, titles, "One")
	assert.Contains(t, titles, "Two")
	assert.Contains(t, titles, "Three")
}

func TestUpdateParseFailureKeepsWorkingDeck(t *testing.T) {
	env := newTestEnv(t)

	// Produce a working deck first.
	rec := env.do(t, http.MethodPost, "/chat", map[string]string{"prompt": "Intro to bees"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	before := decodeBody(t, rec)["slides"]

	// Now the model misbehaves.
	env.model.response = "I will not return JSON."
	rec = env.do(t, http.MethodPost, "/update", map[string]string{"prompt": "add a slide"}, true)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to parse AI response", decodeBody(t, rec)["error"])

	// The working deck is still the generated one.
	rec = env.do(t, http.MethodGet, "/get-slides", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before, decodeBody(t, rec)["slides"])
}

func TestGetSlidesEmptyBeforeAnyGeneration(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/get-slides", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	slides, ok := decodeBody(t, rec)["slides"].([]interface{})
	require.True(t, ok, "slides must be an array, not null")
	assert.Empty(t, slides)
}

func TestLoadAndDeletePresentationNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/load-presentation/no-such-id", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/delete-presentation/no-such-id", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadPresentationRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/chat", map[string]string{"prompt": "Intro to bees"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decodeBody(t, rec)["presentation_id"].(string)
	require.NotEmpty(t, id)

	rec = env.do(t, http.MethodGet, "/load-presentation/"+id, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Intro to Bees", body["title"])
	assert.NotEmpty(t, body["created_at"])
	assert.NotEmpty(t, body["updated_at"])
	assert.NotEmpty(t, body["slides"])

	rec = env.do(t, http.MethodDelete, "/delete-presentation/"+id, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/load-presentation/"+id, nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t)

	t.Run("disallowed extension is rejected and not stored", func(t *testing.T) {
		body, contentType := multipartUpload(t, "notes.txt", []byte("plain text"))
		req := httptest.NewRequest(http.MethodPost, "/upload-image", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		listRec := env.do(t, http.MethodGet, "/get-images", nil, false)
		require.Equal(t, http.StatusOK, listRec.Code)
		images, ok := decodeBody(t, listRec)["images"].([]interface{})
		require.True(t, ok)
		assert.Empty(t, images)
	})

	t.Run("allowed extension is stored and listed", func(t *testing.T) {
		body, contentType := multipartUpload(t, "diagram.png", []byte{0x89, 'P', 'N', 'G'})
		req := httptest.NewRequest(http.MethodPost, "/upload-image", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody(t, rec)
		assert.Equal(t, true, resp["success"])
		assert.Contains(t, resp["filename"], "diagram.png")
		assert.Contains(t, resp["url"], "/static/uploads/")

		listRec := env.do(t, http.MethodGet, "/get-images", nil, false)
		images, ok := decodeBody(t, listRec)["images"].([]interface{})
		require.True(t, ok)
		require.Len(t, images, 1)
	})

	t.Run("missing file field", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/upload-image", map[string]string{}, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
