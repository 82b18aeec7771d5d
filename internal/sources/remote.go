package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/errors"
)

const maxRemoteBody = 4 << 20

// Remote fetches telemetry from an HTTP endpoint returning a JSON object.
// Request parameters are passed as query parameters.
type Remote struct {
	id       string
	name     string
	endpoint *url.URL
	client   *http.Client
	metadata domain.Metadata
}

func newRemote(obj *domain.Object, section map[string]interface{}, client *http.Client) (*Remote, error) {
	raw := stringSetting(section, "url", "")
	if raw == "" {
		return nil, fmt.Errorf("%w: http source needs a url", errors.ErrInvalidInput)
	}
	endpoint, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidInput, endpoint.Scheme)
	}

	metadata := domain.Metadata{"key": obj.ID(), "name": obj.Name(), "source": "http"}
	if extra, ok := section["metadata"].(map[string]interface{}); ok {
		for k, v := range extra {
			metadata[k] = v
		}
	}
	return &Remote{
		id:       obj.ID(),
		name:     obj.Name(),
		endpoint: endpoint,
		client:   client,
		metadata: metadata,
	}, nil
}

// Metadata returns the configured metadata.
func (r *Remote) Metadata() domain.Metadata {
	return r.metadata
}

// RequestData performs one GET against the endpoint.
func (r *Remote) RequestData(ctx context.Context, req domain.Request) (domain.Payload, error) {
	target := *r.endpoint
	query := target.Query()
	for k, v := range req {
		query.Set(k, fmt.Sprint(v))
	}
	target.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.NewObjectError(errors.ErrorTypeInternal, "request_data", r.id, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewObjectError(errors.ErrorTypeSource, "request_data", r.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRemoteBody))
		return nil, errors.WrapSourceError("request_data", r.id, fmt.Errorf("unexpected status %d", resp.StatusCode), resp.StatusCode)
	}

	var payload domain.Payload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteBody)).Decode(&payload); err != nil {
		return nil, errors.NewObjectError(errors.ErrorTypeSource, "decode_response", r.id, err)
	}
	return payload, nil
}
