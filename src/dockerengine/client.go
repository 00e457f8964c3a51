// DOCKER ENGINE REST API CLIENT
// RESTY ONLY, UNIX SOCKET OR TCP
package dockerengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// APIError carries the engine's status code and message so callers can log
// a useful line and skip the tenant for the cycle.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docker engine: status=%d msg=%s", e.StatusCode, e.Message)
}

// Client implements Engine against the Docker Engine REST API.
type Client struct {
	http       *resty.Client
	apiVersion string
}

// NewClient builds a client from DOCKER_HOST. A unix:// host is dialed
// through a custom transport; tcp:// and http:// hosts go straight to the
// daemon's HTTP port.
func NewClient(config Config) (*Client, error) {
	httpClient := resty.New().SetTimeout(config.Timeout)

	switch {
	case strings.HasPrefix(config.Host, "unix://"):
		socketPath := strings.TrimPrefix(config.Host, "unix://")
		httpClient.
			SetTransport(&http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			}).
			SetBaseURL("http://docker")
	case strings.HasPrefix(config.Host, "tcp://"):
		httpClient.SetBaseURL("http://" + strings.TrimPrefix(config.Host, "tcp://"))
	case strings.HasPrefix(config.Host, "http://"), strings.HasPrefix(config.Host, "https://"):
		httpClient.SetBaseURL(config.Host)
	default:
		return nil, fmt.Errorf("unsupported DOCKER_HOST %q", config.Host)
	}

	return &Client{
		http:       httpClient,
		apiVersion: config.APIVersion,
	}, nil
}

func (c *Client) path(format string, args ...interface{}) string {
	return "/" + c.apiVersion + fmt.Sprintf(format, args...)
}

func apiErr(resp *resty.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body(), &body)
	if body.Message == "" {
		body.Message = strings.TrimSpace(string(resp.Body()))
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: body.Message}
}

// inspectResponse is the subset of `GET /containers/{name}/json` we read.
type inspectResponse struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status string `json:"Status"`
	} `json:"State"`
	Config struct {
		Image string `json:"Image"`
	} `json:"Config"`
}

func (r inspectResponse) container() *Container {
	return &Container{
		ID:    r.ID,
		Name:  strings.TrimPrefix(r.Name, "/"),
		Image: r.Config.Image,
		State: r.State.Status,
	}
}

// Get inspects a container by name. Returns (nil, nil) when absent.
func (c *Client) Get(ctx context.Context, name string) (*Container, error) {
	var out inspectResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(c.path("/containers/%s/json", name))
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", name, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}

	return out.container(), nil
}

// Create launches a detached container with a restart policy of always and
// the requested env, volumes and network, then starts it.
func (c *Client) Create(ctx context.Context, opts CreateOptions) (*Container, error) {
	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	binds := make([]string, 0, len(opts.Volumes))
	for volume, mountPath := range opts.Volumes {
		binds = append(binds, volume+":"+mountPath)
	}
	sort.Strings(binds)

	body := map[string]interface{}{
		"Image":    opts.Image,
		"Hostname": opts.Name,
		"Env":      env,
		"HostConfig": map[string]interface{}{
			"Binds":         binds,
			"NetworkMode":   opts.Network,
			"RestartPolicy": map[string]interface{}{"Name": "always"},
		},
	}

	var created struct {
		ID string `json:"Id"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("name", opts.Name).
		SetBody(body).
		SetResult(&created).
		Post(c.path("/containers/create"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", opts.Name, err)
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}

	resp, err = c.http.R().
		SetContext(ctx).
		Post(c.path("/containers/%s/start", created.ID))
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Name, err)
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}

	logger.WithFields(map[string]interface{}{
		"component": "dockerengine",
		"name":      opts.Name,
		"id":        created.ID,
	}).Info("Container created and started")

	return &Container{
		ID:    created.ID,
		Name:  opts.Name,
		Image: opts.Image,
		State: StateRunning,
	}, nil
}

// Restart restarts a container.
func (c *Client) Restart(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(c.path("/containers/%s/restart", id))
	if err != nil {
		return fmt.Errorf("restart %s: %w", id, err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// Remove deletes a container.
func (c *Client) Remove(ctx context.Context, id string, force bool) error {
	req := c.http.R().SetContext(ctx)
	if force {
		req.SetQueryParam("force", "1")
	}

	resp, err := req.Delete(c.path("/containers/%s", id))
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return apiErr(resp)
	}
	return nil
}

// ConnectNetwork attaches a container to a network under the given aliases.
func (c *Client) ConnectNetwork(ctx context.Context, network, id string, aliases []string) error {
	body := map[string]interface{}{
		"Container": id,
		"EndpointConfig": map[string]interface{}{
			"Aliases": aliases,
		},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.path("/networks/%s/connect", network))
	if err != nil {
		return fmt.Errorf("connect network %s: %w", network, err)
	}
	if resp.IsError() {
		return apiErr(resp)
	}
	return nil
}

// ListByImage returns every container created from the given image,
// including stopped ones.
func (c *Client) ListByImage(ctx context.Context, image string) ([]Container, error) {
	filters, err := json.Marshal(map[string][]string{"ancestor": {image}})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID    string   `json:"Id"`
		Names []string `json:"Names"`
		Image string   `json:"Image"`
		State string   `json:"State"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("all", "1").
		SetQueryParam("filters", string(filters)).
		SetResult(&rows).
		Get(c.path("/containers/json"))
	if err != nil {
		return nil, fmt.Errorf("list by image %s: %w", image, err)
	}
	if resp.IsError() {
		return nil, apiErr(resp)
	}

	containers := make([]Container, 0, len(rows))
	for _, row := range rows {
		name := ""
		if len(row.Names) > 0 {
			name = strings.TrimPrefix(row.Names[0], "/")
		}
		containers = append(containers, Container{
			ID:    row.ID,
			Name:  name,
			Image: row.Image,
			State: row.State,
		})
	}
	return containers, nil
}
