package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
	"github.com/zenibako/roster-render/messages"
)

// Helper functions for pretty JSON logging
func logPrettyJSON(logger *log.Logger, level log.Level, message string, jsonStr string) {
	var jsonData any
	if err := json.Unmarshal([]byte(jsonStr), &jsonData); err != nil {
		// Fallback to raw string if JSON parsing fails
		logger.Log(level, message, "raw", jsonStr)
		return
	}

	prettyBytes, err := json.MarshalIndent(jsonData, "", "  ")
	if err != nil {
		logger.Log(level, message, "data", jsonData)
		return
	}

	logger.Log(level, message+"\n"+string(prettyBytes))
}

func logDebugJSON(message string, jsonStr string) {
	logPrettyJSON(log.Default(), log.DebugLevel, message, jsonStr)
}

// formatErrorWithJSON creates a pretty-printed error message from a JSON string
func formatErrorWithJSON(baseMessage string, jsonStr string) error {
	var jsonData any
	if err := json.Unmarshal([]byte(jsonStr), &jsonData); err != nil {
		return fmt.Errorf("%s: %s", baseMessage, jsonStr)
	}

	prettyBytes, err := json.MarshalIndent(jsonData, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %v", baseMessage, jsonData)
	}

	return fmt.Errorf("%s:\n%s", baseMessage, string(prettyBytes))
}

// BridgeReply is the JSON document the render bridge sends back for every request
type BridgeReply struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	ProjectID string          `json:"project_id,omitempty"`
	Address   string          `json:"address,omitempty"`
}

// HasData reports whether the reply carries a non-null data field
func (r BridgeReply) HasData() bool {
	return len(r.Data) > 0 && string(r.Data) != "null"
}

// Decode unmarshals the data field into v
func (r BridgeReply) Decode(v any) error {
	if !r.HasData() {
		return fmt.Errorf("reply has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode reply data: %w", err)
	}
	return nil
}

// BridgeError is returned when the bridge answers a request with status "error"
type BridgeError struct {
	Address string
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("render bridge error for %s: %s", e.Address, e.Message)
}

// Absent reports whether the bridge answered that the requested object does
// not exist, which is a normal outcome for lookups
func (e *BridgeError) Absent() bool {
	return e.Message == messages.ReplyErrNoText || e.Message == messages.ReplyErrNotFound
}

func isAbsent(err error) bool {
	var bridgeErr *BridgeError
	return errors.As(err, &bridgeErr) && bridgeErr.Absent()
}

// TimeoutError is returned when the bridge never answers a request
type TimeoutError struct {
	Address string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for reply from render bridge for %s after %v", e.Address, e.Timeout)
}

func parseReply(address string, args []any) (BridgeReply, error) {
	if len(args) == 0 {
		return BridgeReply{}, fmt.Errorf("empty reply from render bridge for %s", address)
	}
	replyStr, ok := args[0].(string)
	if !ok {
		return BridgeReply{}, fmt.Errorf("invalid reply format from render bridge for %s", address)
	}

	var reply BridgeReply
	if err := json.Unmarshal([]byte(replyStr), &reply); err != nil {
		return BridgeReply{}, fmt.Errorf("failed to parse reply for %s: %w", address, err)
	}

	if reply.Status == "error" {
		logDebugJSON("Render bridge error reply", replyStr)
		return reply, &BridgeError{Address: address, Message: reply.Error}
	}
	if reply.Status != "ok" {
		return reply, formatErrorWithJSON("unexpected reply status from render bridge", replyStr)
	}

	return reply, nil
}

// StartReplyListener starts the persistent OSC server that receives bridge replies
func (p *Project) StartReplyListener() error {
	p.serverMux.Lock()
	if p.replyServer != nil {
		p.serverMux.Unlock()
		log.Debugf("Reply server already running")
		return nil
	}
	p.serverMux.Unlock()

	d := osc.NewStandardDispatcher()

	_ = d.AddMsgHandler("*", func(msg *osc.Message) {
		if !strings.HasPrefix(msg.Address, messages.ReplyPrefix) {
			log.Debugf("Ignoring non-reply message: %s", msg.Address)
			return
		}

		// Find the first handler waiting on this address (with any request ID)
		p.replyHandlersMux.Lock()
		var foundHandler chan []any
		var foundKey string
		for handlerKey, handler := range p.replyHandlers {
			baseAddr := strings.Split(handlerKey, "#")[0]
			if baseAddr == msg.Address {
				foundHandler = handler
				foundKey = handlerKey
				break
			}
		}
		if foundHandler != nil {
			delete(p.replyHandlers, foundKey)
		}
		p.replyHandlersMux.Unlock()

		if foundHandler != nil {
			log.Debugf("Routing reply to handler: %s", foundKey)
			foundHandler <- msg.Arguments
		} else {
			log.Debugf("No handler found for reply: %s", msg.Address)
		}
	})

	replyHost := fmt.Sprintf("%s:%d", p.listenHost, p.replyPort)
	log.Debugf("Starting persistent OSC listener on %s", replyHost)

	server := &osc.Server{
		Addr:       replyHost,
		Dispatcher: d,
	}

	started := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Errorf("OSC listener exited with error: %v", err)
		}
		started <- err
	}()

	select {
	case err := <-started:
		if err != nil {
			return fmt.Errorf("failed to start OSC listener on %s: %w", replyHost, err)
		}
		return fmt.Errorf("OSC listener on %s stopped unexpectedly", replyHost)
	case <-time.After(100 * time.Millisecond):
		p.serverMux.Lock()
		p.replyServer = server
		p.serverMux.Unlock()
		log.Debugf("OSC listener started successfully on %s", replyHost)
		return nil
	}
}

// request sends a message to the bridge and waits for its reply
func (p *Project) request(address string, args ...any) (BridgeReply, error) {
	if err := p.StartReplyListener(); err != nil {
		return BridgeReply{}, err
	}

	timeout := time.Duration(p.timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		msg := osc.NewMessage(address)
		for _, arg := range args {
			msg.Append(arg)
		}

		p.requestCounter++
		requestID := p.requestCounter

		reply := make(chan []any, 1)
		uniqueReplyAddress := p.listenForReply(address, reply, requestID)

		startTime := time.Now()
		if err := p.client.Send(msg); err != nil {
			p.dropHandler(uniqueReplyAddress)
			log.Warnf("Failed to send OSC message: %v", err)
			continue
		}
		log.Debugf("Message sent to %s:%d - %s (attempt %d/%d, requestID: %d)", p.host, p.port, msg.String(), attempt+1, p.maxRetries+1, requestID)

		select {
		case result := <-reply:
			log.Debugf("Reply received for %s in %v (requestID: %d)", address, time.Since(startTime), requestID)
			p.consecutiveErrors = 0
			p.wasConnected = true
			return parseReply(address, result)
		case <-time.After(timeout):
			p.dropHandler(uniqueReplyAddress)
			if attempt < p.maxRetries {
				log.Warnf("Timeout waiting for reply for %s (attempt %d/%d), retrying...", address, attempt+1, p.maxRetries+1)
				time.Sleep(100 * time.Millisecond)
			}
		}
	}

	p.consecutiveErrors++
	if p.wasConnected && p.consecutiveErrors >= 2 && p.onDisconnect != nil {
		p.onDisconnect()
		p.wasConnected = false
	}
	return BridgeReply{}, &TimeoutError{Address: address, Timeout: timeout}
}

func (p *Project) listenForReply(address string, reply chan []any, requestID int) string {
	replyAddress := p.addressBuilder.BuildReplyAddress(address)
	uniqueReplyAddress := fmt.Sprintf("%s#%d", replyAddress, requestID)

	p.replyHandlersMux.Lock()
	p.replyHandlers[uniqueReplyAddress] = reply
	p.replyHandlersMux.Unlock()

	return uniqueReplyAddress
}

func (p *Project) dropHandler(uniqueReplyAddress string) {
	p.replyHandlersMux.Lock()
	delete(p.replyHandlers, uniqueReplyAddress)
	p.replyHandlersMux.Unlock()
}
