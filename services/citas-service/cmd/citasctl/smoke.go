package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eecmx/citas/services/citas-service/internal/booking"
)

type smokeOptions struct {
	BaseURL  string
	Username string
	Password string
	Correo   string
	Location *time.Location
	Client   *http.Client
	Now      func() time.Time
	Out      io.Writer
}

type smokeClient struct {
	opts  smokeOptions
	token string
}

type cita struct {
	ID        int64  `json:"id"`
	FechaHora string `json:"fechaHora"`
	Estado    string `json:"estado"`
}

// runSmoke walks one appointment through its whole lifecycle and fails on
// the first unexpected status code.
func runSmoke(ctx context.Context, opts smokeOptions) error {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	c := &smokeClient{opts: opts}

	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.call(ctx, http.MethodPost, "/login", map[string]string{
		"username": opts.Username,
		"password": opts.Password,
	}, http.StatusOK, &login); err != nil {
		return err
	}
	c.token = login.AccessToken

	at := opts.Now().Add(2 * time.Hour)
	var created cita
	if err := c.call(ctx, http.MethodPost, "/api/citas", map[string]string{
		"nombre":    "Prueba",
		"apellidos": "Humo",
		"correo":    opts.Correo,
		"fechaHora": booking.FormatLocalDateTime(at, opts.Location),
		"motivo":    "smoke test",
	}, http.StatusCreated, &created); err != nil {
		return err
	}
	if created.Estado != "PENDIENTE" {
		return fmt.Errorf("booked appointment has estado %q", created.Estado)
	}
	fmt.Fprintf(opts.Out, "booked cita %d at %s\n", created.ID, created.FechaHora)

	path := fmt.Sprintf("/api/citas/%d", created.ID)
	var updated cita
	if err := c.call(ctx, http.MethodPut, path, map[string]string{"estado": "COMPLETADA"}, http.StatusOK, &updated); err != nil {
		return err
	}
	if updated.Estado != "COMPLETADA" {
		return fmt.Errorf("updated appointment has estado %q", updated.Estado)
	}
	fmt.Fprintf(opts.Out, "cita %d COMPLETADA\n", created.ID)

	if err := c.call(ctx, http.MethodDelete, path, nil, http.StatusNoContent, nil); err != nil {
		return err
	}
	if err := c.call(ctx, http.MethodGet, path, nil, http.StatusNotFound, nil); err != nil {
		return err
	}
	fmt.Fprintf(opts.Out, "cita %d deleted\n", created.ID)
	return nil
}

func (c *smokeClient) call(ctx context.Context, method, path string, body any, want int, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, want, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s %s: decode body: %w", method, path, err)
		}
	}
	return nil
}
