package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klokku/ritual/internal/config"
	"github.com/klokku/ritual/pkg/user"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// RestRemote talks to a PostgREST style backend: /auth/v1/user resolves the
// signed-in account and /rest/v1/user_data holds the rows.
type RestRemote struct {
	baseUrl string
	apiKey  string
	client  *http.Client
}

// NewRestRemote authenticates with the configured tokens. The access token is
// refreshed through /auth/v1/token when a refresh token is configured.
func NewRestRemote(ctx context.Context, cfg config.Rest) *RestRemote {
	baseUrl := strings.TrimRight(cfg.Url, "/")
	token := &oauth2.Token{AccessToken: cfg.AccessToken, RefreshToken: cfg.RefreshToken, TokenType: "Bearer"}

	var source oauth2.TokenSource
	if cfg.RefreshToken != "" {
		oauthConfig := &oauth2.Config{
			ClientID: cfg.ClientId,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseUrl + "/auth/v1/token?grant_type=refresh_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		source = oauthConfig.TokenSource(ctx, token)
	} else {
		source = oauth2.StaticTokenSource(token)
	}

	var client *http.Client
	if cfg.AccessToken != "" || cfg.RefreshToken != "" {
		client = oauth2.NewClient(ctx, source)
	} else {
		client = &http.Client{}
	}
	client.Timeout = 15 * time.Second
	return &RestRemote{baseUrl: baseUrl, apiKey: cfg.ApiKey, client: client}
}

func (r *RestRemote) CurrentUser(ctx context.Context) (user.User, error) {
	resp, err := r.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil)
	if err != nil {
		return user.User{}, err
	}
	defer resp.Body.Close()

	var body struct {
		Id           string `json:"id"`
		Email        string `json:"email"`
		UserMetadata struct {
			FullName string `json:"full_name"`
		} `json:"user_metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return user.User{}, fmt.Errorf("failed to decode user: %w", err)
	}
	if body.Id == "" {
		return user.User{}, ErrUnauthenticated
	}
	return user.User{Uid: body.Id, Email: body.Email, DisplayName: body.UserMetadata.FullName}, nil
}

func (r *RestRemote) SelectAll(ctx context.Context) ([]Row, error) {
	userUid, err := user.CurrentUid(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	query := url.Values{}
	query.Set("select", "data_key,data,updated_at")
	query.Set("user_id", "eq."+userUid)

	resp, err := r.do(ctx, http.MethodGet, "/rest/v1/user_data?"+query.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode user data: %w", err)
	}
	return rows, nil
}

type restRow struct {
	UserId    string          `json:"user_id"`
	DataKey   string          `json:"data_key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r *RestRemote) Upsert(ctx context.Context, rows ...Row) error {
	userUid, err := user.CurrentUid(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	payload := make([]restRow, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, restRow{UserId: userUid, DataKey: row.DataKey, Data: row.Data, UpdatedAt: row.UpdatedAt})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode user data: %w", err)
	}

	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	resp, err := r.do(ctx, http.MethodPost, "/rest/v1/user_data?on_conflict=user_id,data_key", bytes.NewReader(body), headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (r *RestRemote) Ping(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodGet, "/rest/v1/", nil, nil)
	if err != nil {
		// Any answer from the server means it is reachable.
		if errors.Is(err, ErrUnauthenticated) || errors.As(err, new(*StatusError)) {
			return nil
		}
		return err
	}
	defer resp.Body.Close()
	return nil
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sync remote returned status %d: %s", e.Status, e.Body)
}

func (r *RestRemote) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseUrl+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			log.Debugf("sync token refresh rejected: %v", retrieveErr)
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	return resp, nil
}
