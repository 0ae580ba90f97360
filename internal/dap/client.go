package dap

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/go-dap"
	"go.uber.org/zap"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// ErrClosed is returned for requests that cannot complete because the
// connection to the adapter is gone.
var ErrClosed = stderrors.New("dap client closed")

const defaultRequestTimeout = 10 * time.Second

// ResponseError is a failed response from the adapter. Its message is the
// adapter's text, unchanged.
type ResponseError struct {
	Command string
	Message string
}

func (e *ResponseError) Error() string {
	return e.Message
}

// Client provides a high-level API for DAP operations
type Client struct {
	transport      *Transport
	logger         *zap.Logger
	requestTimeout time.Duration

	// Response handling
	pendingRequests map[int]chan dap.Message
	mu              sync.Mutex

	// Event handling
	eventHandler func(dap.Message)
	handlerMu    sync.RWMutex

	// Capabilities from initialize response
	capabilities dap.Capabilities

	// Initialization synchronization
	initialized     chan struct{}
	initializedOnce sync.Once

	// Stopped event handling
	stoppedChan chan *types.StoppedInfo
	lastStopped *types.StoppedInfo
	stoppedMu   sync.Mutex

	// ended closes when the debuggee terminates or the connection drops,
	// closed only when the connection is gone.
	ended     chan struct{}
	endedOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRequestTimeout bounds every request/response round trip.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// NewClient creates a new DAP client with the given transport
func NewClient(transport *Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport:       transport,
		logger:          zap.NewNop(),
		requestTimeout:  defaultRequestTimeout,
		pendingRequests: make(map[int]chan dap.Message),
		initialized:     make(chan struct{}),
		ended:           make(chan struct{}),
		closed:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Start the message reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	return c
}

// SetEventHandler sets the handler for DAP events
func (c *Client) SetEventHandler(handler func(dap.Message)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.eventHandler = handler
}

// Done is closed when the debuggee terminates or exits, or the connection
// to the adapter is lost.
func (c *Client) Done() <-chan struct{} {
	return c.ended
}

// LastStopped returns the most recent stop, or nil while the program runs.
func (c *Client) LastStopped() *types.StoppedInfo {
	c.stoppedMu.Lock()
	defer c.stoppedMu.Unlock()
	if c.lastStopped == nil {
		return nil
	}
	info := *c.lastStopped
	return &info
}

// Capabilities returns the capabilities from the initialize response
func (c *Client) Capabilities() dap.Capabilities {
	return c.capabilities
}

// readLoop continuously reads messages from the transport
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.markClosed()

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	for {
		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}

			// Unknown adapter-specific messages (debugpy sends several) are
			// consumed whole and can be skipped.
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if stderrors.As(err, &fieldErr) {
				c.logger.Debug("Skipping undecodable DAP message", zap.Error(err))
				continue
			}
			if isDisconnect(err) {
				c.logger.Debug("DAP connection closed", zap.Error(err))
				return
			}

			consecutiveErrors++
			c.logger.Warn("DAP transport error",
				zap.Int("attempt", consecutiveErrors),
				zap.Int("max", maxConsecutiveErrors),
				zap.Error(err))
			if consecutiveErrors >= maxConsecutiveErrors {
				c.logger.Warn("DAP transport: too many consecutive errors, stopping read loop")
				return
			}
			continue
		}

		consecutiveErrors = 0
		c.handleMessage(msg)
	}
}

// handleMessage routes incoming messages to the appropriate handler
func (c *Client) handleMessage(msg dap.Message) {
	if r, ok := msg.(dap.ResponseMessage); ok {
		seq := r.GetResponse().RequestSeq
		c.mu.Lock()
		if ch, ok := c.pendingRequests[seq]; ok {
			ch <- msg
			delete(c.pendingRequests, seq)
		}
		c.mu.Unlock()
		return
	}

	switch m := msg.(type) {
	case *dap.InitializedEvent:
		c.initializedOnce.Do(func() {
			close(c.initialized)
		})
	case *dap.StoppedEvent:
		info := &types.StoppedInfo{
			Reason:      m.Body.Reason,
			ThreadID:    m.Body.ThreadId,
			Description: m.Body.Description,
			AllStopped:  m.Body.AllThreadsStopped,
		}
		c.logger.Debug("Debuggee stopped", zap.String("reason", info.Reason), zap.Int("thread", info.ThreadID))
		c.stoppedMu.Lock()
		c.lastStopped = info
		if c.stoppedChan != nil {
			select {
			case c.stoppedChan <- info:
			default:
			}
		}
		c.stoppedMu.Unlock()
	case *dap.ContinuedEvent:
		c.stoppedMu.Lock()
		c.lastStopped = nil
		c.stoppedMu.Unlock()
	case *dap.TerminatedEvent:
		c.logger.Debug("Debuggee terminated")
		c.markEnded()
	case *dap.ExitedEvent:
		c.logger.Debug("Debuggee exited", zap.Int("exitCode", m.Body.ExitCode))
		c.markEnded()
	}

	c.handlerMu.RLock()
	handler := c.eventHandler
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

func isDisconnect(err error) bool {
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, io.ErrClosedPipe) ||
		stderrors.Is(err, net.ErrClosed)
}

func (c *Client) markEnded() {
	c.endedOnce.Do(func() {
		close(c.ended)
	})
}

func (c *Client) markClosed() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	c.markEnded()
}

// send assigns a sequence number, registers the response channel and writes req.
func (c *Client) send(req dap.RequestMessage) (int, chan dap.Message, error) {
	select {
	case <-c.closed:
		return 0, nil, ErrClosed
	default:
	}

	seq := c.transport.NextSeq()
	req.GetRequest().Seq = seq
	req.GetRequest().Type = "request"

	respCh := make(chan dap.Message, 1)
	c.mu.Lock()
	c.pendingRequests[seq] = respCh
	c.mu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.forget(seq)
		return 0, nil, err
	}
	return seq, respCh, nil
}

func (c *Client) forget(seq int) {
	c.mu.Lock()
	delete(c.pendingRequests, seq)
	c.mu.Unlock()
}

// await waits for the response to seq. A failed response becomes a *ResponseError.
func (c *Client) await(ctx context.Context, command string, seq int, respCh chan dap.Message, timeout time.Duration) (dap.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if e, ok := resp.(*dap.ErrorResponse); ok {
			msg := e.Message
			if e.Body.Error != nil && e.Body.Error.Format != "" {
				msg = e.Body.Error.Format
			}
			return nil, &ResponseError{Command: command, Message: msg}
		}
		return resp, nil
	case <-timer.C:
		c.forget(seq)
		return nil, errors.DAPTimeout(command, int(timeout.Seconds()))
	case <-ctx.Done():
		c.forget(seq)
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrClosed
	}
}

// sendRequest sends a request and waits for the response
func (c *Client) sendRequest(ctx context.Context, req dap.RequestMessage, timeout time.Duration) (dap.Message, error) {
	seq, respCh, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return c.await(ctx, req.GetRequest().Command, seq, respCh, timeout)
}

// call sends req and checks the response type and success flag.
func call[T dap.ResponseMessage](ctx context.Context, c *Client, req dap.RequestMessage) (T, error) {
	var zero T
	resp, err := c.sendRequest(ctx, req, c.requestTimeout)
	if err != nil {
		return zero, err
	}
	return checkResponse[T](resp)
}

func checkResponse[T dap.ResponseMessage](resp dap.Message) (T, error) {
	var zero T
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected response type: %T", resp)
	}
	if r := typed.GetResponse(); !r.Success {
		return zero, &ResponseError{Command: r.Command, Message: r.Message}
	}
	return typed, nil
}

func request(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Type: "request"},
		Command:         command,
	}
}

// Initialize sends the initialize request
func (c *Client) Initialize(ctx context.Context, clientID, clientName string) (*dap.InitializeResponse, error) {
	req := &dap.InitializeRequest{
		Request: request("initialize"),
		Arguments: dap.InitializeRequestArguments{
			ClientID:                     clientID,
			ClientName:                   clientName,
			AdapterID:                    "debugpy",
			Locale:                       "en-US",
			LinesStartAt1:                true,
			ColumnsStartAt1:              true,
			PathFormat:                   "path",
			SupportsVariableType:         true,
			SupportsRunInTerminalRequest: false,
		},
	}

	resp, err := call[*dap.InitializeResponse](ctx, c, req)
	if err != nil {
		return nil, err
	}
	c.capabilities = resp.Body
	return resp, nil
}

// WaitInitialized waits for the initialized event
func (c *Client) WaitInitialized(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.initialized:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for initialized event")
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrClosed
	}
}

// LaunchAsync sends a launch request without waiting for the response.
// debugpy answers launch only after configurationDone, so the caller waits
// for the initialized event, finishes configuration, then calls
// WaitForLaunchResponse.
func (c *Client) LaunchAsync(args map[string]any) (*Pending, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal launch args: %w", err)
	}
	return c.sendAsync(&dap.LaunchRequest{Request: request("launch"), Arguments: argsJSON})
}

// WaitForLaunchResponse waits for the launch response
func (c *Client) WaitForLaunchResponse(ctx context.Context, p *Pending, timeout time.Duration) (*dap.LaunchResponse, error) {
	resp, err := c.await(ctx, "launch", p.seq, p.ch, timeout)
	if err != nil {
		return nil, err
	}
	return checkResponse[*dap.LaunchResponse](resp)
}

// AttachAsync sends an attach request without waiting for the response
func (c *Client) AttachAsync(args map[string]any) (*Pending, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attach args: %w", err)
	}
	return c.sendAsync(&dap.AttachRequest{Request: request("attach"), Arguments: argsJSON})
}

// WaitForAttachResponse waits for the attach response
func (c *Client) WaitForAttachResponse(ctx context.Context, p *Pending, timeout time.Duration) (*dap.AttachResponse, error) {
	resp, err := c.await(ctx, "attach", p.seq, p.ch, timeout)
	if err != nil {
		return nil, err
	}
	return checkResponse[*dap.AttachResponse](resp)
}

// Pending is a request whose response has not been awaited yet.
type Pending struct {
	seq int
	ch  chan dap.Message
}

func (c *Client) sendAsync(req dap.RequestMessage) (*Pending, error) {
	seq, ch, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return &Pending{seq: seq, ch: ch}, nil
}

// ConfigurationDone signals that configuration is complete
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := call[*dap.ConfigurationDoneResponse](ctx, c, &dap.ConfigurationDoneRequest{Request: request("configurationDone")})
	return err
}

// Disconnect ends the debug session
func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	req := &dap.DisconnectRequest{
		Request: request("disconnect"),
		Arguments: &dap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	}
	_, err := call[*dap.DisconnectResponse](ctx, c, req)
	return err
}

// Threads gets all threads
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	resp, err := call[*dap.ThreadsResponse](ctx, c, &dap.ThreadsRequest{Request: request("threads")})
	if err != nil {
		return nil, err
	}
	return resp.Body.Threads, nil
}

// StackTrace gets the stack trace for a thread
func (c *Client) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	req := &dap.StackTraceRequest{
		Request: request("stackTrace"),
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}
	resp, err := call[*dap.StackTraceResponse](ctx, c, req)
	if err != nil {
		return nil, err
	}
	return resp.Body.StackFrames, nil
}

// Evaluate evaluates an expression in a frame. A rejected evaluation
// returns a *ResponseError carrying the adapter's message.
func (c *Client) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, error) {
	req := &dap.EvaluateRequest{
		Request: request("evaluate"),
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    evalContext,
		},
	}
	resp, err := call[*dap.EvaluateResponse](ctx, c, req)
	if err != nil {
		return nil, err
	}
	return &resp.Body, nil
}

// SetBreakpoints replaces the breakpoints of a source file
func (c *Client) SetBreakpoints(ctx context.Context, source dap.Source, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetBreakpointsRequest{
		Request: request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      source,
			Breakpoints: breakpoints,
		},
	}
	resp, err := call[*dap.SetBreakpointsResponse](ctx, c, req)
	if err != nil {
		return nil, err
	}
	return resp.Body.Breakpoints, nil
}

// Continue resumes execution
func (c *Client) Continue(ctx context.Context, threadID int) (bool, error) {
	req := &dap.ContinueRequest{
		Request:   request("continue"),
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}
	// Cleared before sending so a stop that overtakes the response is kept.
	c.stoppedMu.Lock()
	c.lastStopped = nil
	c.stoppedMu.Unlock()

	resp, err := call[*dap.ContinueResponse](ctx, c, req)
	if err != nil {
		return false, err
	}
	return resp.Body.AllThreadsContinued, nil
}

// WaitForStopped waits for the next stopped event
func (c *Client) WaitForStopped(ctx context.Context, timeout time.Duration) (*types.StoppedInfo, error) {
	stoppedCh := c.watchStopped()
	defer c.unwatchStopped()
	return c.waitStopped(ctx, stoppedCh, timeout)
}

// ContinueAndWait continues execution and waits for the program to stop again
func (c *Client) ContinueAndWait(ctx context.Context, threadID int, timeout time.Duration) (*types.StoppedInfo, error) {
	// Register before continuing so a fast stop is not missed.
	stoppedCh := c.watchStopped()
	defer c.unwatchStopped()

	if _, err := c.Continue(ctx, threadID); err != nil {
		return nil, err
	}
	return c.waitStopped(ctx, stoppedCh, timeout)
}

func (c *Client) watchStopped() chan *types.StoppedInfo {
	ch := make(chan *types.StoppedInfo, 1)
	c.stoppedMu.Lock()
	c.stoppedChan = ch
	c.stoppedMu.Unlock()
	return ch
}

func (c *Client) unwatchStopped() {
	c.stoppedMu.Lock()
	c.stoppedChan = nil
	c.stoppedMu.Unlock()
}

func (c *Client) waitStopped(ctx context.Context, ch chan *types.StoppedInfo, timeout time.Duration) (*types.StoppedInfo, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case info := <-ch:
		return info, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for stopped event")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ended:
		return nil, ErrClosed
	}
}

// Close shuts down the client. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	c.markEnded()

	err := c.transport.Close()
	c.wg.Wait()
	if err != nil && isDisconnect(err) {
		return nil
	}
	return err
}
