package keypair

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/cfn"
)

// Reporter delivers the terminal response of a custom resource request.
type Reporter interface {
	Report(ctx context.Context, url string, resp *cfn.Response) error
}

// responseDocument always carries Data, sent as {} when there is none, the
// way cfnresponse does. cfn.Response drops an empty Data.
type responseDocument struct {
	*cfn.Response
	Data map[string]interface{} `json:"Data"`
}

func newResponseDocument(resp *cfn.Response) responseDocument {
	data := resp.Data
	if data == nil {
		data = map[string]interface{}{}
	}

	return responseDocument{Response: resp, Data: data}
}

type HTTPReporter struct {
	client *http.Client
}

func NewHTTPReporter(client *http.Client) *HTTPReporter {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPReporter{client: client}
}

// Report PUTs the response document to the pre-signed url. The request carries
// no Content-Type, otherwise the S3 signature does not match.
func (hr *HTTPReporter) Report(ctx context.Context, url string, resp *cfn.Response) error {
	body, err := json.Marshal(newResponseDocument(resp))
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create response request: %w", err)
	}
	req.Header.Del("Content-Type")
	req.ContentLength = int64(len(body))

	res, err := hr.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("invalid status code %d: %s", res.StatusCode, string(resBody))
	}

	return nil
}
