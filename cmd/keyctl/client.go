package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"
)

// apiClient はEnvironment Key Service APIの薄いHTTPクライアント。
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient() (*apiClient, error) {
	if apiURL == "" {
		return nil, errors.New("--api-url is required (or set KEYCTL_API_URL)")
	}
	return &apiClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// do はリクエストを送り、wantStatus 以外ならAPIのエラーメッセージを返す。
func (c *apiClient) do(ctx context.Context, method, path string, reqBody any, wantStatus int) ([]byte, error) {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s (status %d)", errResp.Message, statusCode)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}

// render は --output に従ってレスポンスを書き出す。text の場合は textFn を使う。
func render(w io.Writer, body []byte, v any, textFn func(io.Writer)) error {
	switch output {
	case "json":
		_, err := fmt.Fprintln(w, strings.TrimSpace(string(body)))
		return err
	case "yaml":
		var generic any
		if err := json.Unmarshal(body, &generic); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		textFn(w)
		return nil
	}
	return fmt.Errorf("unknown output format: %q", output)
}
