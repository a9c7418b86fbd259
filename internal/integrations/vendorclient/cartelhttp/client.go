package cartelhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cartelwatch/internal/integrations/vendorclient"
	"cartelwatch/internal/models"
	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://www.chickencartel.nl/ordersjson"

const errOrderNotFound = "Order not found"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type statusResp struct {
	OrderHarmonyStatus *int `json:"OrderHarmonyStatus"`
}

// GetOrderStatus fetches GET {base}/{order_id}/status and maps the vendor
// code to a normalized status. 404 and network-level failures return a
// degraded StatusResult with a nil error; any other non-200 response is
// returned as an error.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (vendor.StatusResult, error) {
	u := fmt.Sprintf("%s/%s/status", c.baseURL, url.PathEscape(orderID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return vendor.StatusResult{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return vendor.StatusResult{
			OrderID: orderID,
			Status:  models.StatusUnknown,
			Err:     err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return vendor.StatusResult{
			OrderID: orderID,
			Status:  models.StatusUnknown,
			Err:     errOrderNotFound,
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return vendor.StatusResult{}, fmt.Errorf("vendor api http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return vendor.StatusResult{}, errors.Wrap(err, "read body")
	}

	var r statusResp
	if err := json.Unmarshal(body, &r); err != nil {
		return vendor.StatusResult{}, errors.Wrap(err, "decode status")
	}

	return vendor.StatusResult{
		OrderID:       orderID,
		Status:        models.StatusForCode(r.OrderHarmonyStatus),
		HarmonyStatus: r.OrderHarmonyStatus,
		RawPayload:    json.RawMessage(body),
	}, nil
}
