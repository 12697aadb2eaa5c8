// Package population refreshes entity population counts from the Census
// decennial redistricting API.
package population

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/geo-backend/internal/geographic"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the 2020 decennial PL 94-171 endpoint.
	DefaultBaseURL = "https://api.census.gov/data/2020/dec/pl"

	// totalPopulation is the P1 table's total-population variable.
	totalPopulation = "P1_001N"
)

// Level is a Census geography level.
type Level string

const (
	LevelState  Level = "state"
	LevelCounty Level = "county"
	LevelPlace  Level = "place"
)

// Kind maps a Census level onto the entity type it updates.
func (l Level) Kind() geographic.EntityType {
	switch l {
	case LevelState:
		return geographic.State
	case LevelCounty:
		return geographic.County
	case LevelPlace:
		return geographic.City
	}
	return 0
}

// Client is an HTTP client for the Census data API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Census client. A non-positive rps disables throttling.
func NewClient(baseURL, apiKey string, rps float64, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Fetch returns the total population of every geography at level. County and
// place queries are scoped to one state.
func (c *Client) Fetch(ctx context.Context, level Level, stateFIPS string) ([]geographic.PopulationUpdate, error) {
	params := url.Values{}
	params.Set("get", "NAME,"+totalPopulation)

	switch level {
	case LevelState:
		params.Set("for", "state:*")
	case LevelCounty, LevelPlace:
		if stateFIPS == "" {
			return nil, fmt.Errorf("%s population needs a state fips", level)
		}
		params.Set("for", string(level)+":*")
		params.Set("in", "state:"+stateFIPS)
	default:
		return nil, fmt.Errorf("unknown census level %q", level)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("census request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("census status %d for %s %s", resp.StatusCode, level, stateFIPS)
	}

	var table [][]string
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode census: %w", err)
	}
	return parseTable(level, table)
}

// parseTable reads the Census array-of-rows format. The first row names the
// columns; geography codes come after the requested variables.
func parseTable(level Level, table [][]string) ([]geographic.PopulationUpdate, error) {
	if len(table) == 0 {
		return nil, nil
	}
	cols := make(map[string]int, len(table[0]))
	for i, name := range table[0] {
		cols[name] = i
	}
	popCol, ok := cols[totalPopulation]
	if !ok {
		return nil, fmt.Errorf("census response has no %s column", totalPopulation)
	}
	stateCol, ok := cols["state"]
	if !ok {
		return nil, fmt.Errorf("census response has no state column")
	}
	codeCol := stateCol
	if level != LevelState {
		if codeCol, ok = cols[string(level)]; !ok {
			return nil, fmt.Errorf("census response has no %s column", level)
		}
	}

	out := make([]geographic.PopulationUpdate, 0, len(table)-1)
	for _, row := range table[1:] {
		if len(row) != len(table[0]) {
			continue
		}
		pop, err := strconv.ParseInt(row[popCol], 10, 64)
		if err != nil {
			continue
		}
		u := geographic.PopulationUpdate{FIPS: row[codeCol], Population: pop}
		if level != LevelState {
			u.StateFIPS = row[stateCol]
		}
		out = append(out, u)
	}
	return out, nil
}
