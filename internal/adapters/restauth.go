package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/fsonner/restauth-bridge/internal/config"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// RemoteCallRecorder counts remote service calls, e.g. for Prometheus metrics.
type RemoteCallRecorder interface {
	CountRemoteCall(operation string, err error)
}

type noopRecorder struct{}

func (noopRecorder) CountRemoteCall(string, error) {}

// RestAuthClient talks to the remote authentication service over its HTTP
// protocol. All operations are blocking calls bounded by the configured
// timeout; there are no retries, a single failure aborts the operation.
type RestAuthClient struct {
	cfg      *config.RestAuthConfig
	client   *http.Client
	recorder RemoteCallRecorder
}

// NewRestAuthClient creates a new client for the remote authentication service.
func NewRestAuthClient(cfg *config.RestAuthConfig, recorder RemoteCallRecorder) *RestAuthClient {
	cfg.Sanitize()

	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &RestAuthClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		recorder: recorder,
	}
}

// UserExists checks whether the given user is known to the remote service.
func (c *RestAuthClient) UserExists(ctx context.Context, name domain.UserIdentifier) (bool, error) {
	err := c.do(ctx, "user-exists", http.MethodGet, c.userPath(name), nil, nil)
	if err != nil {
		var svcErr *domain.ServiceError
		if errors.As(err, &svcErr) && svcErr.IsRecoverable() {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// VerifyPassword checks a username and password pair. A wrong password and an
// unknown user are indistinguishable, both yield false.
func (c *RestAuthClient) VerifyPassword(ctx context.Context, name domain.UserIdentifier, password string) (
	bool,
	error,
) {
	body := map[string]string{"password": password}
	err := c.do(ctx, "verify-password", http.MethodPost, c.userPath(name), body, nil)
	if err != nil {
		var svcErr *domain.ServiceError
		if errors.As(err, &svcErr) && svcErr.IsRecoverable() {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// SetPassword updates the password of the given user.
func (c *RestAuthClient) SetPassword(ctx context.Context, name domain.UserIdentifier, password string) error {
	body := map[string]string{"password": password}
	return c.do(ctx, "set-password", http.MethodPut, c.userPath(name), body, nil)
}

// CreateUser registers a new user, optionally seeding initial properties.
// If the name is already taken, a conflict error is returned.
func (c *RestAuthClient) CreateUser(
	ctx context.Context,
	name domain.UserIdentifier,
	password string,
	properties map[string]string,
) error {
	body := map[string]any{
		"user":     string(name),
		"password": password,
	}
	if len(properties) > 0 {
		body["properties"] = properties
	}

	return c.do(ctx, "create-user", http.MethodPost, "/users/", body, nil)
}

// GetProperties returns all stored properties of the given user.
func (c *RestAuthClient) GetProperties(ctx context.Context, name domain.UserIdentifier) (
	map[string]string,
	error,
) {
	var props map[string]string
	err := c.do(ctx, "get-properties", http.MethodGet, c.userPath(name)+"props/", nil, &props)
	if err != nil {
		return nil, err
	}
	if props == nil {
		props = make(map[string]string)
	}

	return props, nil
}

// SetProperties stores multiple properties in a single request, overwriting
// existing values.
func (c *RestAuthClient) SetProperties(
	ctx context.Context,
	name domain.UserIdentifier,
	props map[string]string,
) error {
	if len(props) == 0 {
		return nil
	}

	return c.do(ctx, "set-properties", http.MethodPut, c.userPath(name)+"props/", props, nil)
}

// RemoveProperty deletes a single property of the given user.
func (c *RestAuthClient) RemoveProperty(ctx context.Context, name domain.UserIdentifier, key string) error {
	return c.do(ctx, "remove-property", http.MethodDelete,
		c.userPath(name)+"props/"+url.PathEscape(key)+"/", nil, nil)
}

// GetGroupsForUser returns the names of all remote groups the user is a member of.
func (c *RestAuthClient) GetGroupsForUser(ctx context.Context, name domain.UserIdentifier) ([]string, error) {
	var groups []string
	path := "/groups/?user=" + url.QueryEscape(string(name))
	err := c.do(ctx, "get-groups", http.MethodGet, path, nil, &groups)
	if err != nil {
		return nil, err
	}

	return groups, nil
}

// GetAllGroups returns the names of all groups known to the remote service.
func (c *RestAuthClient) GetAllGroups(ctx context.Context) ([]string, error) {
	var groups []string
	err := c.do(ctx, "get-all-groups", http.MethodGet, "/groups/", nil, &groups)
	if err != nil {
		return nil, err
	}

	return groups, nil
}

// CreateGroup registers a new remote group.
func (c *RestAuthClient) CreateGroup(ctx context.Context, group string) error {
	body := map[string]string{"group": group}
	return c.do(ctx, "create-group", http.MethodPost, "/groups/", body, nil)
}

// AddUserToGroup adds the user to a remote group.
func (c *RestAuthClient) AddUserToGroup(ctx context.Context, group string, name domain.UserIdentifier) error {
	body := map[string]string{"user": string(name)}
	return c.do(ctx, "group-add-user", http.MethodPost, c.groupPath(group)+"users/", body, nil)
}

// RemoveUserFromGroup removes the user from a remote group.
func (c *RestAuthClient) RemoveUserFromGroup(
	ctx context.Context,
	group string,
	name domain.UserIdentifier,
) error {
	return c.do(ctx, "group-remove-user", http.MethodDelete,
		c.groupPath(group)+"users/"+url.PathEscape(string(name))+"/", nil, nil)
}

func (c *RestAuthClient) userPath(name domain.UserIdentifier) string {
	return "/users/" + url.PathEscape(string(name)) + "/"
}

func (c *RestAuthClient) groupPath(group string) string {
	return "/groups/" + url.PathEscape(group) + "/"
}

func (c *RestAuthClient) do(
	ctx context.Context,
	operation, method, path string,
	body any,
	result any,
) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Url+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.cfg.Service, string(c.cfg.ServicePassword))

	resp, err := c.client.Do(req)
	if err != nil {
		// network level failures count as a retryable outage
		svcErr := domain.NewServiceError(domain.ServiceErrUnknown, 0, err.Error())
		c.recorder.CountRemoteCall(operation, svcErr)
		slog.Debug("remote call failed", "operation", operation, "error", err)
		return svcErr
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if result != nil && resp.StatusCode != http.StatusNoContent {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				svcErr := domain.NewServiceError(domain.ServiceErrUnknown, resp.StatusCode,
					fmt.Sprintf("malformed response body: %v", err))
				c.recorder.CountRemoteCall(operation, svcErr)
				slog.Debug("remote call failed", "operation", operation, "error", svcErr)
				return svcErr
			}
		}
		c.recorder.CountRemoteCall(operation, nil)
		return nil
	}

	svcErr := statusToServiceError(resp)
	c.recorder.CountRemoteCall(operation, svcErr)
	slog.Debug("remote call rejected",
		"operation", operation, "status", resp.StatusCode, "kind", svcErr.Kind)

	return svcErr
}

func statusToServiceError(resp *http.Response) *domain.ServiceError {
	message, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	var kind domain.ServiceErrorKind
	switch {
	case resp.StatusCode == http.StatusNotFound:
		kind = domain.ServiceErrNotFound
	case resp.StatusCode == http.StatusConflict:
		kind = domain.ServiceErrConflict
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = domain.ServiceErrUnauthorized
	case resp.StatusCode == http.StatusBadRequest:
		kind = domain.ServiceErrBadRequest
	case resp.StatusCode >= 500:
		kind = domain.ServiceErrServerError
	default:
		kind = domain.ServiceErrUnknown
	}

	return domain.NewServiceError(kind, resp.StatusCode, string(message))
}

