/* Copyright (c) 2025 Fusion Net <https://fusion-net.org>
 * SPDX-License-Identifier: BSD-3-Clause */
package tracker

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

    "github.com/fusion-net-org/fusion-board/internal/config"
    "github.com/rs/zerolog"
)

// Client talks to the Fusion tracker REST API. Payloads stay map[string]any;
// shaping them into view models is the board package's job.
type Client struct {
    baseURL string
    token   string
    user    string
    pass    string
    http    *http.Client
    log     zerolog.Logger
    page    int
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: cfg.TrackerBaseURL,
        token:   cfg.TrackerToken,
        user:    cfg.TrackerUsername,
        pass:    cfg.TrackerPassword,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
        page:    cfg.PageSize,
    }
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

func (c *Client) doJSON(ctx context.Context, method, u string, body any) (map[string]any, error) {
    if c.baseURL == "" { return nil, errors.New("tracker: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return nil, err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var r io.Reader
        if payload != nil { r = bytes.NewReader(payload) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return nil, err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.token != "" {
            req.Header.Set("Authorization", "Bearer "+c.token)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        }
        resp, err := c.http.Do(req)
        if err != nil {
            lastErr = err
        } else {
            b, rerr := io.ReadAll(resp.Body)
            resp.Body.Close()
            if rerr != nil { return nil, rerr }
            if resp.StatusCode >= 300 {
                apiErr := fmt.Errorf("tracker api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
                // retry on 429/5xx only
                if resp.StatusCode == 429 || resp.StatusCode >= 500 { lastErr = apiErr } else { return nil, apiErr }
            } else {
                var out map[string]any
                if err := json.Unmarshal(b, &out); err != nil { return nil, err }
                return out, nil
            }
        }
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return nil, lastErr
}

func (c *Client) pageSize() int {
    if c.page <= 0 { return 100 }
    return c.page
}

// listPage unwraps a paged list response: {"items": [...], "total": n}.
func listPage(m map[string]any) ([]map[string]any, int) {
    raw, _ := m["items"].([]any)
    out := make([]map[string]any, 0, len(raw))
    for _, v := range raw {
        if im, _ := v.(map[string]any); im != nil { out = append(out, im) }
    }
    total := 0
    if t, ok := m["total"].(float64); ok { total = int(t) }
    return out, total
}

// Sprints lists all sprints of a project, draining pagination.
func (c *Client) Sprints(ctx context.Context, projectID string) ([]map[string]any, error) {
    if projectID == "" { return nil, errors.New("tracker: empty project id") }
    var out []map[string]any
    page := 0
    for {
        q := url.Values{}
        q.Set("page", fmt.Sprint(page))
        q.Set("size", fmt.Sprint(c.pageSize()))
        u := c.apiURL("/api/v1/projects/"+url.PathEscape(projectID)+"/sprints", q)
        m, err := c.doJSON(ctx, http.MethodGet, u, nil)
        if err != nil { return nil, err }
        items, total := listPage(m)
        out = append(out, items...)
        if len(items) == 0 || len(out) >= total { break }
        page++
    }
    return out, nil
}

// Tasks lists all tasks of a project, draining pagination.
func (c *Client) Tasks(ctx context.Context, projectID string) ([]map[string]any, error) {
    if projectID == "" { return nil, errors.New("tracker: empty project id") }
    var out []map[string]any
    page := 0
    for {
        q := url.Values{}
        q.Set("page", fmt.Sprint(page))
        q.Set("size", fmt.Sprint(c.pageSize()))
        u := c.apiURL("/api/v1/projects/"+url.PathEscape(projectID)+"/tasks", q)
        m, err := c.doJSON(ctx, http.MethodGet, u, nil)
        if err != nil { return nil, err }
        items, total := listPage(m)
        out = append(out, items...)
        if len(items) == 0 || len(out) >= total { break }
        page++
    }
    return out, nil
}

// UpdateStatus patches a task's workflow status and returns the confirmed DTO.
func (c *Client) UpdateStatus(ctx context.Context, taskID, statusID string) (map[string]any, error) {
    if taskID == "" { return nil, errors.New("tracker: empty task id") }
    u := c.apiURL("/api/v1/tasks/"+url.PathEscape(taskID)+"/status", nil)
    return c.doJSON(ctx, http.MethodPatch, u, map[string]any{"statusId": statusID})
}

// Reorder moves a task to a target column position within a sprint.
func (c *Client) Reorder(ctx context.Context, projectID, sprintID, taskID, toStatusID string, toIndex int) (map[string]any, error) {
    if sprintID == "" || taskID == "" { return nil, errors.New("tracker: empty sprint or task id") }
    u := c.apiURL("/api/v1/projects/"+url.PathEscape(projectID)+"/sprints/"+url.PathEscape(sprintID)+"/reorder", nil)
    return c.doJSON(ctx, http.MethodPut, u, map[string]any{"taskId": taskID, "toStatusId": toStatusID, "toIndex": toIndex})
}

// Move assigns a task to another sprint.
func (c *Client) Move(ctx context.Context, taskID, toSprintID string) (map[string]any, error) {
    if taskID == "" { return nil, errors.New("tracker: empty task id") }
    u := c.apiURL("/api/v1/tasks/"+url.PathEscape(taskID)+"/move", nil)
    return c.doJSON(ctx, http.MethodPost, u, map[string]any{"toSprintId": toSprintID})
}

// MarkDone transitions a task to its workflow's terminal status server-side.
func (c *Client) MarkDone(ctx context.Context, taskID string) (map[string]any, error) {
    if taskID == "" { return nil, errors.New("tracker: empty task id") }
    u := c.apiURL("/api/v1/tasks/"+url.PathEscape(taskID)+"/done", nil)
    return c.doJSON(ctx, http.MethodPost, u, nil)
}

// Split breaks a task in two; the response carries partA and partB DTOs.
func (c *Client) Split(ctx context.Context, taskID string) (map[string]any, error) {
    if taskID == "" { return nil, errors.New("tracker: empty task id") }
    u := c.apiURL("/api/v1/tasks/"+url.PathEscape(taskID)+"/split", nil)
    return c.doJSON(ctx, http.MethodPost, u, nil)
}
