package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testApp(cfg Config) *fiber.App {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	app := fiber.New()
	app.Use(Middleware(cfg))
	handler := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Post("/api/v1/chat", handler)
	app.Post("/api/v1/search", handler)
	return app
}

func post(t *testing.T, app *fiber.App, path, contentType, body string) int {
	t.Helper()

	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware_ValidChatPasses(t *testing.T) {
	app := testApp(Config{})
	code := post(t, app, "/api/v1/chat", "application/json", `{"message": "hello"}`)
	assert.Equal(t, fiber.StatusOK, code)
}

func TestMiddleware_MissingMessage(t *testing.T) {
	app := testApp(Config{})

	assert.Equal(t, fiber.StatusBadRequest,
		post(t, app, "/api/v1/chat", "application/json", `{}`))
	assert.Equal(t, fiber.StatusBadRequest,
		post(t, app, "/api/v1/chat", "application/json", `{"message": "   "}`))
}

func TestMiddleware_OversizedMessage(t *testing.T) {
	app := testApp(Config{MaxMessageLength: 10})

	code := post(t, app, "/api/v1/chat", "application/json", `{"message": "this message is far too long"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestMiddleware_UnsupportedContentType(t *testing.T) {
	app := testApp(Config{})

	code := post(t, app, "/api/v1/chat", "text/xml", `<message>hi</message>`)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, code)
}

func TestMiddleware_OversizedQuery(t *testing.T) {
	app := testApp(Config{MaxQueryLength: 5})

	code := post(t, app, "/api/v1/search", "application/json", `{"query": "much too long"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestMiddleware_ValidSearchPasses(t *testing.T) {
	app := testApp(Config{})

	code := post(t, app, "/api/v1/search", "application/json", `{"query": "budget"}`)
	assert.Equal(t, fiber.StatusOK, code)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello", Sanitize("  hello  "))
	assert.Equal(t, "hello", Sanitize("\x00hello\x00"))
	assert.Equal(t, "", Sanitize("   "))
}
