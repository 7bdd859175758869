// Package rest is the typed HTTP client for the rescue coordination API.
// Failures surface as errors; there are no automatic retries, callers degrade.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"backend-platego/internal/shared/geo"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWithHTTPClient injects the transport, for tests.
func NewWithHTTPClient(baseURL, token string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), token: token, http: httpClient}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Available bool   `json:"available"`
	AvatarURL string `json:"avatar_url"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type LoginResponse struct {
	User   User          `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

type Rescue struct {
	ID          string `json:"id"`
	RequesterID string `json:"requester_id"`
	VolunteerID string `json:"volunteer_id"`
	Status      string `json:"status"`
	Location    string `json:"location"`
	Reason      string `json:"reason"`
}

type Positions struct {
	Requester *geo.Point `json:"requester,omitempty"`
	Volunteer *geo.Point `json:"volunteer,omitempty"`
}

type Car struct {
	ID      string `json:"id"`
	Company string `json:"carCompany"`
	Model   string `json:"model"`
	Year    int    `json:"year"`
	Color   string `json:"color"`
	Plate   string `json:"plate"`
	Image   string `json:"image"`
	Reports int    `json:"numberOfReports"`
}

type Chat struct {
	ID        string `json:"id"`
	Plate     string `json:"plate"`
	StarterID string `json:"starterId"`
	OwnerID   string `json:"ownerId"`
}

type ChatSummary struct {
	ID          string `json:"id"`
	Plate       string `json:"plate"`
	PeerID      string `json:"peerId"`
	LastMessage string `json:"lastMessage,omitempty"`
	Unread      int    `json:"unread"`
}

type Message struct {
	ID       string `json:"id"`
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Body     string `json:"body"`
}

type Notification struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	RescueID string `json:"rescueId,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
	Read     bool   `json:"read"`
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out)
	return out, err
}

func (c *Client) SetAvailability(ctx context.Context, available bool) error {
	return c.do(ctx, http.MethodPut, "/api/auth/availability", map[string]bool{
		"available": available,
	}, nil)
}

func (c *Client) CreateRescue(ctx context.Context, location, when, reason string) (Rescue, error) {
	var out Rescue
	err := c.do(ctx, http.MethodPost, "/api/rescue/create", map[string]string{
		"location": location,
		"time":     when,
		"reason":   reason,
	}, &out)
	return out, err
}

func (c *Client) AcceptRescue(ctx context.Context, rescueID string) (Rescue, error) {
	var out Rescue
	err := c.do(ctx, http.MethodPut, "/api/rescue/accept/"+rescueID, nil, &out)
	return out, err
}

func (c *Client) CompleteRescue(ctx context.Context, rescueID string) error {
	return c.do(ctx, http.MethodPut, "/api/rescue/complete/"+rescueID, nil, nil)
}

func (c *Client) CancelRescue(ctx context.Context, rescueID string) error {
	return c.do(ctx, http.MethodDelete, "/api/rescue/"+rescueID, nil, nil)
}

func (c *Client) Rescue(ctx context.Context, rescueID string) (Rescue, error) {
	var out Rescue
	err := c.do(ctx, http.MethodGet, "/api/rescue/"+rescueID, nil, &out)
	return out, err
}

func (c *Client) RescuePositions(ctx context.Context, rescueID string) (Positions, error) {
	var out Positions
	err := c.do(ctx, http.MethodGet, "/api/rescue/"+rescueID+"/positions", nil, &out)
	return out, err
}

func (c *Client) Cars(ctx context.Context) ([]Car, error) {
	var out []Car
	err := c.do(ctx, http.MethodGet, "/api/cars/", nil, &out)
	return out, err
}

func (c *Client) AddCar(ctx context.Context, car Car) (Car, error) {
	var out Car
	err := c.do(ctx, http.MethodPost, "/api/cars/", car, &out)
	return out, err
}

func (c *Client) UpdateCar(ctx context.Context, carID string, car Car) (Car, error) {
	var out Car
	err := c.do(ctx, http.MethodPut, "/api/cars/"+carID, car, &out)
	return out, err
}

func (c *Client) DeleteCar(ctx context.Context, carID string) error {
	return c.do(ctx, http.MethodDelete, "/api/cars/"+carID, nil, nil)
}

func (c *Client) RecognizePlate(ctx context.Context, imageURL string) (string, error) {
	var out struct {
		Plate string `json:"plate"`
	}
	err := c.do(ctx, http.MethodPost, "/api/cars/recognize", map[string]string{
		"image_url": imageURL,
	}, &out)
	return out.Plate, err
}

func (c *Client) OpenChat(ctx context.Context, plate string) (Chat, error) {
	var out Chat
	err := c.do(ctx, http.MethodPost, "/api/chats/", map[string]string{"plate": plate}, &out)
	return out, err
}

func (c *Client) Chats(ctx context.Context) ([]ChatSummary, error) {
	var out []ChatSummary
	err := c.do(ctx, http.MethodGet, "/api/chats/", nil, &out)
	return out, err
}

func (c *Client) Messages(ctx context.Context, chatID string) ([]Message, error) {
	var out []Message
	err := c.do(ctx, http.MethodGet, "/api/chats/"+chatID+"/messages", nil, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, chatID, body string) (Message, error) {
	var out Message
	err := c.do(ctx, http.MethodPost, "/api/chats/"+chatID+"/messages", map[string]string{"body": body}, &out)
	return out, err
}

func (c *Client) MarkChatRead(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodPut, "/api/chats/"+chatID+"/read", nil, nil)
}

func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	err := c.do(ctx, http.MethodGet, "/api/notification/my", nil, &out)
	return out, err
}

func (c *Client) SaveNotification(ctx context.Context, n Notification) error {
	return c.do(ctx, http.MethodPost, "/api/notification/my", n, nil)
}

func (c *Client) MarkNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/notification/mark-read", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
