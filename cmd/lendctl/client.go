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
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"frendlend/crypto"
	"frendlend/gateway/auth"
)

// client talks to a lendingd node. POSTs are signed with key.
type client struct {
	base   string
	http   *http.Client
	key    *crypto.PrivateKey
	bearer string
	now    func() time.Time
}

// apiError is the JSON error body lendingd returns.
type apiError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

func (e *apiError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s (%d %s, request %s)", e.Message, e.Status, e.Code, e.RequestID)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

func (a *app) viewClient() *client {
	return &client{
		base:   strings.TrimRight(a.server, "/"),
		http:   &http.Client{Timeout: a.timeout},
		bearer: a.bearer,
		now:    time.Now,
	}
}

// signingClient unlocks the signing key from the keystore.
func (a *app) signingClient() (*client, error) {
	key, err := a.loadKey()
	if err != nil {
		return nil, err
	}
	c := a.viewClient()
	c.key = key
	return c, nil
}

func (a *app) loadKey() (*crypto.PrivateKey, error) {
	if a.keyFile == "" && a.account == "" {
		return nil, errors.New("signing key required; pass --account or --key-file")
	}
	pass, err := a.pass.Get()
	if err != nil {
		return nil, err
	}
	if a.keyFile != "" {
		return crypto.LoadFromKeystore(a.keyFile, pass)
	}
	addr, err := crypto.ParseAddress(a.account)
	if err != nil {
		return nil, fmt.Errorf("--account: %w", err)
	}
	return crypto.LoadAccount(a.keystore, addr, pass)
}

func (c *client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *client) post(ctx context.Context, path string, in, out any) error {
	if c.key == nil {
		return errors.New("signed request without a key")
	}
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = raw
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if method != http.MethodGet {
		if err := auth.SignRequest(req, c.key, body, c.now(), uuid.NewString()); err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(payload, apiErr) != nil || apiErr.Message == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(payload))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(payload, out)
}

// printJSON writes v indented to the command's stdout.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runView GETs path and prints the raw response.
func runView(a *app, path string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		var out json.RawMessage
		if err := a.viewClient().get(cmd.Context(), path, &out); err != nil {
			return err
		}
		return printJSON(cmd, out)
	}
}

// runSigned POSTs body to path with the signing key and prints the response.
func runSigned(cmd *cobra.Command, a *app, path string, body any) error {
	c, err := a.signingClient()
	if err != nil {
		return err
	}
	var out json.RawMessage
	if err := c.post(cmd.Context(), path, body, &out); err != nil {
		return err
	}
	return printJSON(cmd, out)
}
