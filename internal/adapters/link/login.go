package link

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dkeye/voicesync/internal/domain"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type loginRequest struct {
	Name string `json:"name"`
	Bot  bool   `json:"bot"`
}

type loginResponse struct {
	Player domain.Player `json:"player"`
	Token  string        `json:"token"`
	Error  string        `json:"error"`
}

// Login exchanges a display name for a signed player token.
func Login(ctx context.Context, client *http.Client, serverURL, name string, bot bool) (domain.Player, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	body, err := json.Marshal(loginRequest{Name: name, Bot: bot})
	if err != nil {
		return domain.Player{}, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(serverURL, "/")+"/api/login", bytes.NewReader(body))
	if err != nil {
		return domain.Player{}, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return domain.Player{}, "", fmt.Errorf("%w: login: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return domain.Player{}, "", fmt.Errorf("%w: login: %v", domain.ErrTransport, err)
	}
	var out loginResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Player{}, "", fmt.Errorf("%w: login: %v", domain.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Player{}, "", fmt.Errorf("%w: login %d: %s", domain.ErrNotAuthenticated, resp.StatusCode, out.Error)
	}
	return out.Player, out.Token, nil
}
