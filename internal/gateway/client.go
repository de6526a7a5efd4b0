// Package gateway предоставляет общий клиент внешнего GraphQL-сервиса,
// владеющего всеми персистентными данными платформы.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const adminSecretHeader = "x-hasura-admin-secret"

// ErrUnavailable возвращается, когда шлюз недоступен или отвечает серверной ошибкой.
var ErrUnavailable = errors.New("graphql gateway unavailable")

// QueryError описывает ошибку, возвращённую шлюзом в теле ответа GraphQL.
type QueryError struct {
	Message string
	Code    string
}

func (e *QueryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graphql error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("graphql error: %s", e.Message)
}

// Client инкапсулирует HTTP-взаимодействие с GraphQL-шлюзом.
// Один экземпляр разделяется всеми обработчиками процесса.
type Client struct {
	endpoint    string
	adminSecret string
	httpClient  *http.Client
}

// NewClient создаёт клиент GraphQL-шлюза с административным секретом.
// Транспорт повторяет запросы при сетевых сбоях и ответах 5xx.
func NewClient(endpoint, adminSecret string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 10 * time.Second

	return &Client{
		endpoint:    normalizeEndpoint(endpoint),
		adminSecret: adminSecret,
		httpClient:  rc.StandardClient(),
	}
}

func normalizeEndpoint(endpoint string) string {
	e := strings.TrimRight(endpoint, "/")
	if e == "" {
		return e
	}
	if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
		e = "http://" + e
	}
	return e
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// Do выполняет GraphQL-запрос или мутацию и декодирует поле data в out.
// Непустой массив errors ответа превращается в *QueryError по первому элементу.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any, out any) error {
	if c == nil || c.endpoint == "" {
		return fmt.Errorf("gateway client not configured")
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminSecret != "" {
		req.Header.Set(adminSecretHeader, c.adminSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var gr graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if len(gr.Errors) > 0 {
		first := gr.Errors[0]
		return &QueryError{Message: first.Message, Code: first.Extensions.Code}
	}

	if out != nil {
		if len(gr.Data) == 0 {
			return fmt.Errorf("empty data in response")
		}
		if err := json.Unmarshal(gr.Data, out); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}

	return nil
}
