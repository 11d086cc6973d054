package carrierhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/session"
	"github.com/pkg/errors"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL  string
	email    string
	password string
	httpc    *http.Client
	session  *session.Manager
}

func New(baseURL, email, password string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
	c.session = session.New(c.login)
	return c
}

// Session exposes the token cache, mostly for health reporting.
func (c *Client) Session() *session.Manager { return c.session }

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResp struct {
	Token string `json:"token"`
}

func (c *Client) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(loginReq{Email: c.email, Password: c.password})
	if err != nil {
		return "", errors.Wrap(err, "marshal login")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", &carrier.UnavailableError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", &carrier.AuthError{Err: fmt.Errorf("login http %d", resp.StatusCode)}
	}
	var lr loginResp
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", &carrier.AuthError{Err: errors.Wrap(err, "decode login")}
	}
	if lr.Token == "" {
		return "", &carrier.AuthError{Err: errors.New("empty token")}
	}
	return lr.Token, nil
}

// do sends an authorized request. A 401 invalidates the token and the
// request is sent exactly once more with a fresh one.
func (c *Client) do(ctx context.Context, op, method, path string, in any) (int, []byte, error) {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, errors.Wrap(err, "marshal "+op)
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		token, err := c.session.Token(ctx)
		if err != nil {
			return 0, nil, err
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return 0, nil, errors.Wrap(err, "new request")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return 0, nil, &carrier.UnavailableError{Op: op, Err: err}
		}
		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return 0, nil, &carrier.UnavailableError{Op: op, Err: errors.Wrap(err, "read body")}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			c.session.Invalidate(token)
			if attempt == 0 {
				continue
			}
			return resp.StatusCode, nil, &carrier.AuthError{Err: fmt.Errorf("%s: http 401 after re-login", op)}
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return resp.StatusCode, nil, &carrier.UnavailableError{Op: op, Err: fmt.Errorf("http %d", resp.StatusCode)}
		}
		if resp.StatusCode/100 != 2 {
			return resp.StatusCode, nil, &carrier.BusinessError{StatusCode: resp.StatusCode, Message: messageOf(b)}
		}
		return resp.StatusCode, b, nil
	}
}

type pickupResp struct {
	Locations []struct {
		Name string `json:"name"`
	} `json:"locations"`
}

func (c *Client) PickupLocations(ctx context.Context) ([]carrier.PickupLocation, error) {
	_, b, err := c.do(ctx, "pickup locations", http.MethodGet, "/pickup-locations", nil)
	if err != nil {
		return nil, err
	}
	var pr pickupResp
	if err := json.Unmarshal(b, &pr); err != nil {
		return nil, errors.Wrap(err, "decode pickup locations")
	}
	out := make([]carrier.PickupLocation, 0, len(pr.Locations))
	for _, l := range pr.Locations {
		if strings.TrimSpace(l.Name) == "" {
			continue
		}
		out = append(out, carrier.PickupLocation{Name: l.Name})
	}
	return out, nil
}

type createResp struct {
	OrderID    flexID `json:"order_id"`
	ShipmentID flexID `json:"shipment_id"`
	Message    string `json:"message"`
}

func (c *Client) CreateOrder(ctx context.Context, in carrier.CreateOrderRequest) (carrier.CreateOrderResult, error) {
	status, b, err := c.do(ctx, "create order", http.MethodPost, "/orders/create", in)
	if err != nil {
		return carrier.CreateOrderResult{}, err
	}
	var cr createResp
	if err := json.Unmarshal(b, &cr); err != nil {
		return carrier.CreateOrderResult{}, errors.Wrap(err, "decode create order")
	}
	res := carrier.CreateOrderResult{
		OrderID:    string(cr.OrderID),
		ShipmentID: string(cr.ShipmentID),
		Message:    cr.Message,
	}
	if res.OrderID == "" && res.Message == "" {
		return res, &carrier.BusinessError{StatusCode: status, Message: "response has neither order_id nor message"}
	}
	return res, nil
}

type cancelReq struct {
	IDs []string `json:"ids"`
}

func (c *Client) CancelOrders(ctx context.Context, carrierOrderIDs []string) error {
	if len(carrierOrderIDs) == 0 {
		return errors.New("no carrier order ids to cancel")
	}
	_, _, err := c.do(ctx, "cancel orders", http.MethodPost, "/orders/cancel", cancelReq{IDs: carrierOrderIDs})
	return err
}

func (c *Client) GetTracking(ctx context.Context, shipmentID string) (carrier.Tracking, error) {
	path := fmt.Sprintf("/tracking/%s", url.PathEscape(shipmentID))
	_, b, err := c.do(ctx, "tracking", http.MethodGet, path, nil)
	if err != nil {
		return carrier.Tracking{}, err
	}
	return decodeTracking(b, shipmentID)
}

func messageOf(b []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &m) == nil && m.Message != "" {
		return m.Message
	}
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
