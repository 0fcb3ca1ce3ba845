package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/pixaccess/pixel"
)

// DefaultConnectTimeout bounds connection setup to the pixel server.
const DefaultConnectTimeout = 10 * time.Second

// maxErrorBody is the most of an error response body that is read for its message.
const maxErrorBody = 4 * pixel.Kilo

// Request is one protocol call.
type Request struct {
	Method string
	Fields pixel.Fields

	// Part is the form field name of the payload, e.g. "Pixels" or "File".
	Part    string
	Payload *Payload
}

// Client performs protocol calls against one pixel server endpoint.  Each call
// is synchronous and self-contained.  The underlying http.Client reuses
// connections between calls.
type Client struct {
	endpoint       string
	token          string
	connectTimeout time.Duration
	callTimeout    time.Duration
	httpClient     *http.Client
}

type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithConnectTimeout overrides DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithCallTimeout bounds each whole call including the response body.  Zero,
// the default, leaves calls bounded only by the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithHTTPClient replaces the default transport.  The connect timeout is then
// the responsibility of the given client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a client for the pixel server at endpoint, an absolute
// http or https URL.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("bad pixel server endpoint %q: %v", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("pixel server endpoint %q must be an http or https URL", endpoint)
	}
	c := &Client{
		endpoint:       endpoint,
		connectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		dialer := &net.Dialer{Timeout: c.connectTimeout}
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   c.connectTimeout,
				MaxIdleConnsPerHost:   2,
				ExpectContinueTimeout: time.Second,
			},
		}
	}
	return c, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call performs a request without a payload.
func (c *Client) Call(ctx context.Context, method string, fields pixel.Fields) (*Response, error) {
	return c.Do(ctx, Request{Method: method, Fields: fields})
}

// Do performs one protocol call and returns its response.  Non-success
// statuses are returned as *pixel.TransportError except 409 Conflict, which
// maps to pixel.ErrNotWritable or pixel.ErrNotReadable.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	// Open any local file first so an unreadable file fails before any I/O.
	var payload io.ReadCloser
	if req.Payload != nil {
		var err error
		if payload, err = req.Payload.Open(); err != nil {
			return nil, err
		}
		defer payload.Close()
	}

	body, contentType := encodeForm(req, payload)
	defer body.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &pixel.TransportError{Method: req.Method, Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	timedLog := pixel.NewTimeLog()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &pixel.TransportError{Method: req.Method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(req.Method, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pixel.TransportError{Method: req.Method, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}
	timedLog.Debugf("%s -> %s", req.Method, humanize.Bytes(uint64(len(data))))
	return &Response{method: req.Method, body: data}, nil
}

// encodeForm streams the multipart request body through a pipe so large
// payloads are never staged in memory.
func encodeForm(req Request, payload io.Reader) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeForm(mw, req, payload)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func writeForm(mw *multipart.Writer, req Request, payload io.Reader) error {
	if err := mw.WriteField("Method", req.Method); err != nil {
		return err
	}
	for _, f := range req.Fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return err
		}
	}
	if payload == nil {
		return nil
	}
	part := req.Part
	if part == "" {
		part = "Pixels"
	}
	w, err := mw.CreateFormFile(part, req.Payload.Name())
	if err != nil {
		return err
	}
	_, err = io.Copy(w, payload)
	return err
}

func statusError(method string, resp *http.Response) error {
	var message string
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxErrorBody))
	if scanner.Scan() {
		message = strings.TrimSpace(scanner.Text())
	}
	if resp.StatusCode == http.StatusConflict {
		reason, detail, _ := strings.Cut(message, ":")
		detail = strings.TrimSpace(detail)
		switch reason {
		case pixel.ReasonNotWritable:
			return fmt.Errorf("%s: %w: %s", method, pixel.ErrNotWritable, detail)
		case pixel.ReasonNotReadable:
			return fmt.Errorf("%s: %w: %s", method, pixel.ErrNotReadable, detail)
		}
	}
	terr := &pixel.TransportError{
		Method:     method,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    message,
	}
	if resp.StatusCode == http.StatusNotFound {
		terr.Err = pixel.ErrNotFound
	} else {
		terr.Err = errors.New(resp.Status)
	}
	return terr
}
