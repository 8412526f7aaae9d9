// Package scenario drives the depot HTTP API with canned traffic patterns.
package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
)

type Scenario interface {
	Name() string
	Run(ctx context.Context, client *http.Client, baseURL string) error
}

// Result counts responses by status code.
type Result map[int]int

// Tanks created by Setup and used by the built-in scenarios.
var Tanks = []struct{ ID, Unit string }{
	{"diesel", "L"},
	{"heating-oil", "gal"},
	{"crude", "bbl"},
	{"ballast", "t"},
}

// Setup creates the tanks the scenarios expect. Tanks that already exist are
// left alone.
func Setup(ctx context.Context, client *http.Client, baseURL string) error {
	for _, t := range Tanks {
		status, err := post(ctx, client, baseURL+"/tank", map[string]interface{}{"id": t.ID, "unit": t.Unit})
		if err != nil {
			return err
		}
		if status != http.StatusCreated && status != http.StatusConflict {
			return fmt.Errorf("create tank %s: unexpected status %d", t.ID, status)
		}
	}
	return nil
}

// MixedFills fills liquid tanks in assorted volume units.
type MixedFills struct {
	Rand   *rand.Rand
	Counts Result
}

func (s *MixedFills) Name() string { return "mixed-fills" }

func (s *MixedFills) Run(ctx context.Context, client *http.Client, baseURL string) error {
	volumes := []string{"L", "gal", "bbl", "m3"}
	for _, tank := range []string{"diesel", "heating-oil", "crude"} {
		status, err := post(ctx, client, baseURL+"/fill", map[string]interface{}{
			"id":       tank,
			"quantity": 1 + s.Rand.Float64()*10,
			"unit":     volumes[s.Rand.Intn(len(volumes))],
		})
		if err != nil {
			return err
		}
		s.Counts.record(status)
	}
	return nil
}

// Shuffle moves liquid between tanks, sometimes more than the source holds.
type Shuffle struct {
	Rand   *rand.Rand
	Counts Result
}

func (s *Shuffle) Name() string { return "shuffle" }

func (s *Shuffle) Run(ctx context.Context, client *http.Client, baseURL string) error {
	liquids := []string{"diesel", "heating-oil", "crude"}
	from := liquids[s.Rand.Intn(len(liquids))]
	to := liquids[s.Rand.Intn(len(liquids))]
	status, err := post(ctx, client, baseURL+"/transfer", map[string]interface{}{
		"from":     from,
		"to":       to,
		"quantity": s.Rand.Float64() * 500,
		"unit":     "L",
	})
	if err != nil {
		return err
	}
	s.Counts.record(status)
	return nil
}

// Mismatches sends fills whose unit cannot measure the tank.
type Mismatches struct {
	Rand   *rand.Rand
	Counts Result
}

func (s *Mismatches) Name() string { return "mismatches" }

func (s *Mismatches) Run(ctx context.Context, client *http.Client, baseURL string) error {
	pairs := [][2]string{{"diesel", "kg"}, {"ballast", "L"}, {"crude", "h"}}
	p := pairs[s.Rand.Intn(len(pairs))]
	status, err := post(ctx, client, baseURL+"/fill", map[string]interface{}{
		"id":       p[0],
		"quantity": 1,
		"unit":     p[1],
	})
	if err != nil {
		return err
	}
	s.Counts.record(status)
	return nil
}

func (r Result) record(status int) {
	if r != nil {
		r[status]++
	}
}

func post(ctx context.Context, client *http.Client, url string, body interface{}) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
