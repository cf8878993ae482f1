package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// Client is the read-only profile store. Lookups of unknown ids return
// nil, nil.
type Client interface {
	GetFreelancerProfile(ctx context.Context, id string) (*store.FreelancerProfile, error)
	GetClientProfile(ctx context.Context, id string) (*store.ClientProfile, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// doReq returns the body of a successful GET, or nil when the profile does
// not exist.
func (c *HTTPClient) doReq(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Agent-ID", "bazaar")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("profiles GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *HTTPClient) GetFreelancerProfile(ctx context.Context, id string) (*store.FreelancerProfile, error) {
	data, err := c.doReq(ctx, "/api/v1/freelancers/"+url.PathEscape(id))
	if err != nil || data == nil {
		return nil, err
	}
	var p store.FreelancerProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode freelancer %s: %w", id, err)
	}
	return &p, nil
}

func (c *HTTPClient) GetClientProfile(ctx context.Context, id string) (*store.ClientProfile, error) {
	data, err := c.doReq(ctx, "/api/v1/clients/"+url.PathEscape(id))
	if err != nil || data == nil {
		return nil, err
	}
	var p store.ClientProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode client %s: %w", id, err)
	}
	return &p, nil
}

// StaticClient serves profiles from memory. It backs local runs without a
// profile service.
type StaticClient struct {
	mu          sync.RWMutex
	freelancers map[string]*store.FreelancerProfile
	clients     map[string]*store.ClientProfile
}

func NewStaticClient() *StaticClient {
	return &StaticClient{
		freelancers: make(map[string]*store.FreelancerProfile),
		clients:     make(map[string]*store.ClientProfile),
	}
}

func (c *StaticClient) PutFreelancer(p store.FreelancerProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freelancers[p.ID] = &p
}

func (c *StaticClient) PutClient(p store.ClientProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[p.ID] = &p
}

func (c *StaticClient) GetFreelancerProfile(_ context.Context, id string) (*store.FreelancerProfile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.freelancers[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.Skills = append([]store.Skill(nil), p.Skills...)
	cp.BioEmbedding = *p.BioEmbedding.Clone()
	return &cp, nil
}

func (c *StaticClient) GetClientProfile(_ context.Context, id string) (*store.ClientProfile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.clients[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}
