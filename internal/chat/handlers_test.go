package chat

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-platego/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pashagolub/pgxmock/v3"
)

const testSecret = "chat-test-secret"

func signTestToken(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.Claims{
		UserID: userID,
		Role:   auth.RoleRequester,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newChatApp(svc *Service) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/api/chats"), svc, auth.JWTMiddleware(testSecret))
	return app
}

func TestChatHandlersOpen(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT owner_id FROM cars`).
		WithArgs("1234567").
		WillReturnRows(pgxmock.NewRows([]string{"owner_id"}).AddRow("own-1"))
	mock.ExpectQuery(`SELECT id, created_at FROM chats`).
		WithArgs("1234567", "user-1").
		WillReturnError(errors.New("no rows in result set"))
	mock.ExpectQuery(`INSERT INTO chats`).
		WithArgs(pgxmock.AnyArg(), "1234567", "user-1", "own-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	app := newChatApp(NewService(mock, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/chats/", bytes.NewReader([]byte(`{"plate":"1234567"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "user-1"))
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("open status: %v %d", err, resp.StatusCode)
	}
}

func TestChatHandlersOpenUnknownPlate(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT owner_id FROM cars`).
		WithArgs("0000000").
		WillReturnError(errors.New("no rows in result set"))

	app := newChatApp(NewService(mock, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/chats/", bytes.NewReader([]byte(`{"plate":"0000000"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "user-1"))
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", resp.StatusCode)
	}
}

func TestChatHandlersSendForbiddenForStranger(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT starter_id, owner_id FROM chats`).
		WithArgs("chat-1").
		WillReturnRows(pgxmock.NewRows([]string{"starter_id", "owner_id"}).AddRow("user-1", "own-1"))

	app := newChatApp(NewService(mock, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/chats/chat-1/messages", bytes.NewReader([]byte(`{"body":"hi"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "stranger"))
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", resp.StatusCode)
	}
}

func TestChatHandlersListUnauthorized(t *testing.T) {
	app := newChatApp(NewService(nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/chats/", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}
}
