package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dbroz/warble-core/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNotPending is returned when an approve/reject references a call id that
// is not the currently focused confirmation (already resolved, or never
// queued). The provider still receives an explicit "no longer pending" tool
// output so the model is not left waiting.
var ErrNotPending = errors.New("tool call is no longer pending confirmation")

// Sender delivers tool outputs and response-create commands to the provider.
// The session engine implements it on top of the adapter and transport.
type Sender interface {
	SendToolOutput(callID, output string, success bool, previousItemID string) error
	CreateResponse() error
}

// PreviewFunc renders a human-readable title/content pair for a pending
// confirmation. It may call the external API and is invoked asynchronously;
// the confirmation is announced with the tool name until it returns.
type PreviewFunc func(ctx context.Context, kind Kind, name string, parameters map[string]any) (title, content string)

// PendingConfirmation wraps one confirmation-required tool call while it
// waits for the user's decision.
type PendingConfirmation struct {
	Call       events.ToolCall
	Kind       Kind
	Parameters map[string]any

	// Title and Content are display strings, filled in asynchronously.
	Title   string
	Content string

	// Order is the enqueue sequence number, monotonic per gate.
	Order uint64
}

// Callbacks surface gate activity to the engine.
type Callbacks struct {
	// OnFocusChanged fires whenever the focused (head) confirmation changes;
	// pending is nil when the queue empties. Fired again for the same head
	// when its preview resolves. pending is a value snapshot the receiver
	// may retain and read freely.
	OnFocusChanged func(pending *PendingConfirmation)
	// OnEvent receives tool call lifecycle events for the conversation feed.
	OnEvent func(event events.Event)
}

// Gate classifies tool calls, auto-executes safe ones, and holds unsafe
// ones in an ordered queue with single-focus confirmation: the provider is
// told about at most the head element at any time.
type Gate struct {
	executor  Executor
	sender    Sender
	preview   PreviewFunc
	callbacks Callbacks

	mu    sync.Mutex
	queue []*PendingConfirmation
	order uint64

	// announcedID is the call id currently communicated to the provider as
	// awaiting confirmation, empty when none is. The announce decision is
	// taken under mu so a resolve and a concurrent enqueue can never both
	// claim the same head.
	announcedID string
}

func NewGate(executor Executor, sender Sender, preview PreviewFunc, callbacks Callbacks) *Gate {
	if callbacks.OnFocusChanged == nil {
		callbacks.OnFocusChanged = func(*PendingConfirmation) {}
	}
	if callbacks.OnEvent == nil {
		callbacks.OnEvent = func(events.Event) {}
	}

	return &Gate{
		executor:  executor,
		sender:    sender,
		preview:   preview,
		callbacks: callbacks,
	}
}

// HandleToolCall routes one model-requested tool call: safe calls execute
// immediately, unsafe ones are enqueued for confirmation. Blocking; run it
// off the session event loop.
func (g *Gate) HandleToolCall(ctx context.Context, call events.ToolCall) {
	kind := ParseKind(call.Name)

	var parameters map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &parameters); err != nil {
			g.callbacks.OnEvent(events.NewToolCallFailed(call.CallID, call.Name, "invalid arguments"))
			g.deliverOutput(call, fmt.Sprintf("invalid tool arguments: %v", err), false)
			return
		}
	}

	if IsSafe(kind, call.Name) {
		g.execute(ctx, call, parameters)
		return
	}

	g.enqueue(ctx, call, kind, parameters)
}

// Approve executes the focused confirmation and relays its real output. A
// callID that does not match the focused head yields ErrNotPending and an
// explicit "no longer pending" output.
func (g *Gate) Approve(ctx context.Context, callID string) error {
	pending, err := g.dequeue(callID)
	if err != nil {
		return err
	}

	g.execute(ctx, pending.Call, pending.Parameters)
	g.announceHead(ctx)
	return nil
}

// Reject relays a denied output for the focused confirmation without
// executing it.
func (g *Gate) Reject(ctx context.Context, callID string) error {
	pending, err := g.dequeue(callID)
	if err != nil {
		return err
	}

	g.callbacks.OnEvent(events.NewToolCallFailed(pending.Call.CallID, pending.Call.Name, "denied by user"))
	output, _ := json.Marshal(map[string]string{
		"status":  "denied",
		"message": "The user declined this action. Do not retry it unless asked again.",
	})
	g.deliverOutput(pending.Call, string(output), true)
	g.announceHead(ctx)
	return nil
}

// Pending returns a snapshot of the queue in enqueue order, head first.
func (g *Gate) Pending() []PendingConfirmation {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot := make([]PendingConfirmation, 0, len(g.queue))
	for _, pending := range g.queue {
		snapshot = append(snapshot, *pending)
	}
	return snapshot
}

func (g *Gate) enqueue(ctx context.Context, call events.ToolCall, kind Kind, parameters map[string]any) {
	g.mu.Lock()
	g.order++
	pending := &PendingConfirmation{
		Call:       call,
		Kind:       kind,
		Parameters: parameters,
		Title:      call.Name,
		Order:      g.order,
	}
	g.queue = append(g.queue, pending)
	announce := g.announcedID == "" && g.queue[0] == pending
	if announce {
		g.announcedID = pending.Call.CallID
	}
	g.mu.Unlock()

	if g.preview != nil {
		go g.resolvePreview(ctx, pending)
	}

	if announce {
		g.announce(pending)
	}
	g.callbacks.OnFocusChanged(g.head())
}

func (g *Gate) resolvePreview(ctx context.Context, pending *PendingConfirmation) {
	title, content := g.preview(ctx, pending.Kind, pending.Call.Name, pending.Parameters)

	g.mu.Lock()
	if title != "" {
		pending.Title = title
	}
	pending.Content = content
	stillQueued := false
	for _, queued := range g.queue {
		if queued == pending {
			stillQueued = true
			break
		}
	}
	g.mu.Unlock()

	if stillQueued {
		g.callbacks.OnFocusChanged(g.head())
	}
}

// dequeue removes and returns the head iff callID references it.
func (g *Gate) dequeue(callID string) (*PendingConfirmation, error) {
	g.mu.Lock()
	if len(g.queue) == 0 || g.queue[0].Call.CallID != callID {
		g.mu.Unlock()

		output, _ := json.Marshal(map[string]string{
			"status":  "not_pending",
			"message": "This tool call is no longer awaiting confirmation.",
		})
		if err := g.sender.SendToolOutput(callID, string(output), false, ""); err != nil {
			logger.Warn("failed to send not-pending tool output", "call_id", callID, "error", err)
		}
		return nil, ErrNotPending
	}

	pending := g.queue[0]
	g.queue = g.queue[1:]
	g.announcedID = ""
	g.mu.Unlock()
	return pending, nil
}

// announceHead notifies the provider about the new focused confirmation
// after the previous head was resolved. A head that was already announced
// by a concurrent enqueue is not announced again.
func (g *Gate) announceHead(context.Context) {
	g.mu.Lock()
	var head *PendingConfirmation
	if len(g.queue) > 0 {
		head = g.queue[0]
	}
	announce := head != nil && g.announcedID != head.Call.CallID
	if announce {
		g.announcedID = head.Call.CallID
	}
	g.mu.Unlock()

	if announce {
		g.announce(head)
	}
	g.callbacks.OnFocusChanged(g.head())
}

// announce sends the synthetic awaiting-confirmation output plus a
// response-create, so the model verbally asks the user for a decision.
func (g *Gate) announce(pending *PendingConfirmation) {
	output, _ := json.Marshal(map[string]string{
		"status":  "awaiting_confirmation",
		"message": fmt.Sprintf("The action %q needs user confirmation. Briefly ask the user to confirm or reject it.", pending.Call.Name),
	})

	if err := g.sender.SendToolOutput(pending.Call.CallID, string(output), true, pending.Call.ItemID); err != nil {
		logger.Warn("failed to announce pending confirmation", "call_id", pending.Call.CallID, "error", err)
		return
	}
	if err := g.sender.CreateResponse(); err != nil {
		logger.Warn("failed to request confirmation prompt response", "call_id", pending.Call.CallID, "error", err)
	}
}

// head returns a value snapshot of the focused confirmation, nil when the
// queue is empty. Callers never see the queued element itself; its Title and
// Content keep being written by resolvePreview.
func (g *Gate) head() *PendingConfirmation {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return nil
	}
	snapshot := *g.queue[0]
	return &snapshot
}

func (g *Gate) execute(ctx context.Context, call events.ToolCall, parameters map[string]any) {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name))

	g.callbacks.OnEvent(events.NewToolCallStarted(call.CallID, call.Name))

	result, err := g.executor.Execute(ctx, call.Name, parameters, call.CallID)
	if err != nil {
		err = fmt.Errorf("failed to execute tool %q: %w", call.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.callbacks.OnEvent(events.NewToolCallFailed(call.CallID, call.Name, err.Error()))
		g.deliverOutput(call, err.Error(), false)
		return
	}

	if !result.Success {
		message := "tool execution failed"
		if result.Err != nil {
			message = result.Err.Message
			span.SetAttributes(attribute.String("tool.error_code", result.Err.Code))
		}
		span.SetStatus(codes.Error, message)
		g.callbacks.OnEvent(events.NewToolCallFailed(call.CallID, call.Name, message))
		g.deliverOutput(call, message, false)
		return
	}

	response := result.Response
	if response == "" {
		response = `{"success":true}`
	}
	g.callbacks.OnEvent(events.NewToolCallCompleted(call.CallID, call.Name, response))
	g.deliverOutput(call, response, true)
}

// deliverOutput sends a tool output followed by a response-create so the
// model continues the conversation with the result in context.
func (g *Gate) deliverOutput(call events.ToolCall, output string, success bool) {
	if err := g.sender.SendToolOutput(call.CallID, output, success, call.ItemID); err != nil {
		logger.Warn("failed to send tool output", "call_id", call.CallID, "error", err)
		return
	}
	if err := g.sender.CreateResponse(); err != nil {
		logger.Warn("failed to send response create after tool output", "call_id", call.CallID, "error", err)
	}
}
