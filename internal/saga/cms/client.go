// Package cms is the SOAP client for the Client Management System. No
// SOAP stack exists anywhere in the retrieved reference corpus, so the
// envelope is hand-rolled with encoding/xml, in the spirit of the
// teacher's own hand-rolled AMQP topology declarations.
package cms

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

const requestTimeout = 30 * time.Second

// Client talks SOAP to a CMS endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "http://cms-stub:8081").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	CmsNS   string   `xml:"xmlns:cms,attr"`
	Body    body     `xml:"soap:Body"`
}

type body struct {
	Register *registerRequest `xml:"cms:RegisterOrderRequest"`
	Cancel   *cancelRequest   `xml:"cms:CancelOrderRequest"`
}

type registerRequest struct {
	OrderID         string `xml:"cms:OrderId"`
	ClientID        string `xml:"cms:ClientId"`
	PickupAddress   string `xml:"cms:PickupAddress"`
	DeliveryAddress string `xml:"cms:DeliveryAddress"`
}

type cancelRequest struct {
	OrderID  string `xml:"cms:OrderId"`
	ClientID string `xml:"cms:ClientId"`
}

type responseEnvelope struct {
	Body responseBody `xml:"Body"`
}

type responseBody struct {
	CmsReference string `xml:"RegisterOrderResponse>CmsReference"`
}

const (
	soapNS = "http://schemas.xmlsoap.org/soap/envelope/"
	cmsNS  = "http://swiftlogistics.lk/cms"
)

// Register posts a RegisterOrderRequest SOAP envelope and returns the
// parsed <cms:CmsReference>.
func (c *Client) Register(ctx context.Context, orderID, clientID, pickup, delivery string) (string, error) {
	env := envelope{
		SoapNS: soapNS,
		CmsNS:  cmsNS,
		Body: body{
			Register: &registerRequest{
				OrderID:         orderID,
				ClientID:        clientID,
				PickupAddress:   pickup,
				DeliveryAddress: delivery,
			},
		},
	}
	raw, err := c.do(ctx, "/soap/orders", env)
	if err != nil {
		return "", err
	}

	var parsed responseEnvelope
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("cms: parse response: %w", err)
	}
	if parsed.Body.CmsReference == "" {
		return "", fmt.Errorf("cms: response missing CmsReference")
	}
	return parsed.Body.CmsReference, nil
}

// Cancel posts the compensating CancelOrderRequest. The cancel response
// carries no CmsReference, so unlike Register this only checks the HTTP
// status.
func (c *Client) Cancel(ctx context.Context, orderID, clientID string) error {
	env := envelope{
		SoapNS: soapNS,
		CmsNS:  cmsNS,
		Body: body{
			Cancel: &cancelRequest{OrderID: orderID, ClientID: clientID},
		},
	}
	_, err := c.do(ctx, "/soap/cancel", env)
	return err
}

// do posts env to path and returns the raw response body, after checking
// the HTTP status. It does not interpret the body — Register and Cancel
// parse (or ignore) it themselves, since their responses carry different
// content.
func (c *Client) do(ctx context.Context, path string, env envelope) ([]byte, error) {
	payload, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("cms: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("cms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cms: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cms: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cms: status %d: %s", resp.StatusCode, string(raw))
	}

	return raw, nil
}
