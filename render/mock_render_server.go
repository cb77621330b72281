package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
	"github.com/zenibako/roster-render/messages"
	"github.com/zenibako/roster-render/templates"
)

// ReceivedMessage captures details about received OSC messages for testing
type ReceivedMessage struct {
	Address   string
	Arguments []any
	Timestamp time.Time
}

// MockRenderServer simulates the render bridge for testing
type MockRenderServer struct {
	host        string
	port        int
	replyPort   int
	server      *osc.Server
	projectID   string
	comps       []*MockComp
	templates   map[string]bool
	queue       []*mockQueueItem
	nextItemID  int
	renderPolls int             // Status polls a started item stays "queued" before finishing
	pollsLeft   int             // Remaining polls for the current render
	rendering   bool            // Render started on the current queue
	failComps   map[string]bool // Compositions whose renders end in "failed"
	disconnects int
	mu          sync.Mutex
	isRunning   bool
	received    []ReceivedMessage
}

// MockComp represents a composition in the mock project
type MockComp struct {
	Name     string
	Selected bool
	Layers   []*MockLayer
}

// MockLayer represents a layer of a mock composition
type MockLayer struct {
	Name    string
	Text    *string                   // nil when the layer has no text property
	Effects map[string]map[string]int // effect name -> property -> value
}

type mockQueueItem struct {
	ID       string    `json:"id"`
	Comp     string    `json:"comp"`
	Status   JobStatus `json:"status"`
	Template string    `json:"template"`
	File     string    `json:"file"`
}

// NewMockRenderServer creates a new mock render bridge
func NewMockRenderServer(host string, port int) *MockRenderServer {
	return &MockRenderServer{
		host:      host,
		port:      port,
		replyPort: port + 1, // Match the reply port calculation in NewProject
		projectID: "MOCK-PROJECT-ID-1234",
		templates: map[string]bool{templates.DefaultTemplateName: true},
		failComps: make(map[string]bool),
		received:  make([]ReceivedMessage, 0),
	}
}

// Start starts the mock OSC server
func (m *MockRenderServer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("mock server already running")
	}

	d := osc.NewStandardDispatcher()
	_ = d.AddMsgHandler("*", m.handleMessage)

	m.server = &osc.Server{
		Addr:       fmt.Sprintf("%s:%d", m.host, m.port),
		Dispatcher: d,
	}

	server := m.server
	go func() {
		if err := server.ListenAndServe(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Errorf("Mock OSC server error: %v", err)
		}
	}()

	// Give the server time to bind
	time.Sleep(100 * time.Millisecond)

	m.isRunning = true
	log.Infof("Mock render bridge started on %s:%d (reply: %d)", m.host, m.port, m.replyPort)
	return nil
}

// Stop stops the mock OSC server
func (m *MockRenderServer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return nil
	}

	if m.server != nil {
		server := m.server
		m.server = nil

		go func() {
			time.Sleep(100 * time.Millisecond)
			if err := server.CloseConnection(); err != nil {
				log.Warnf("Failed to close mock server: %v", err)
			}
		}()
	}

	m.isRunning = false
	log.Info("Mock render bridge stopped")
	return nil
}

// GetProjectID returns the mock project ID
func (m *MockRenderServer) GetProjectID() string {
	return m.projectID
}

// AddComp adds a composition to the mock project
func (m *MockRenderServer) AddComp(name string, selected bool) *MockComp {
	m.mu.Lock()
	defer m.mu.Unlock()

	comp := &MockComp{Name: name, Selected: selected}
	m.comps = append(m.comps, comp)
	return comp
}

// AddTextLayer appends a layer carrying source text
func (c *MockComp) AddTextLayer(name, text string) *MockLayer {
	layer := &MockLayer{Name: name, Text: &text}
	c.Layers = append(c.Layers, layer)
	return layer
}

// AddLayer appends a layer without text
func (c *MockComp) AddLayer(name string) *MockLayer {
	layer := &MockLayer{Name: name}
	c.Layers = append(c.Layers, layer)
	return layer
}

// AddEffect attaches an effect with initial property values
func (l *MockLayer) AddEffect(name string, properties map[string]int) {
	if l.Effects == nil {
		l.Effects = make(map[string]map[string]int)
	}
	l.Effects[name] = properties
}

// AddTemplate registers an output module template
func (m *MockRenderServer) AddTemplate(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[name] = true
}

// SetRenderPolls sets how many status polls a started render stays queued
func (m *MockRenderServer) SetRenderPolls(polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renderPolls = polls
}

// SetFailingComp makes renders of the named composition end in "failed"
func (m *MockRenderServer) SetFailingComp(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failComps[name] = true
}

// GetPropertyValue returns an effect property value from the mock project
func (m *MockRenderServer) GetPropertyValue(comp, layer, effect, property string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.findComp(comp)
	if c == nil {
		return 0, false
	}
	for _, l := range c.Layers {
		if l.Name == layer {
			if props, ok := l.Effects[effect]; ok {
				v, ok := props[property]
				return v, ok
			}
		}
	}
	return 0, false
}

// Disconnects returns how many disconnect messages the mock received
func (m *MockRenderServer) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// GetReceivedMessages returns all captured messages
func (m *MockRenderServer) GetReceivedMessages() []ReceivedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ReceivedMessage, len(m.received))
	copy(out, m.received)
	return out
}

// GetMessagesForAddress returns captured messages whose address contains the pattern
func (m *MockRenderServer) GetMessagesForAddress(addressPattern string) []ReceivedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var filtered []ReceivedMessage
	for _, msg := range m.received {
		if strings.Contains(msg.Address, addressPattern) {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// findComp must be called with m.mu held
func (m *MockRenderServer) findComp(name string) *MockComp {
	for _, c := range m.comps {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (m *MockRenderServer) handleMessage(msg *osc.Message) {
	m.mu.Lock()
	m.received = append(m.received, ReceivedMessage{
		Address:   msg.Address,
		Arguments: msg.Arguments,
		Timestamp: time.Now(),
	})
	reply := m.route(msg)
	m.mu.Unlock()

	m.sendReply(msg.Address, reply)
}

// route must be called with m.mu held
func (m *MockRenderServer) route(msg *osc.Message) map[string]any {
	parts := messages.SplitAddress(msg.Address)
	if len(parts) == 0 {
		return errorReply("empty address")
	}

	switch parts[0] {
	case "connect":
		return m.handleConnect(msg)
	case "disconnect":
		m.disconnects++
		return okReply(nil)
	case "project":
		if len(parts) == 2 && (parts[1] == "items" || parts[1] == "selection") {
			return m.handleItems(parts[1] == "selection")
		}
	case "comp":
		if len(parts) >= 3 {
			return m.handleComp(parts[1], parts[2:], msg.Arguments)
		}
	case "renderQueue":
		if len(parts) == 2 {
			return m.handleQueue(parts[1], msg.Arguments)
		}
	}

	return errorReply(fmt.Sprintf("unknown address %s", msg.Address))
}

func (m *MockRenderServer) handleConnect(msg *osc.Message) map[string]any {
	var passcode string
	if len(msg.Arguments) > 0 {
		passcode, _ = msg.Arguments[0].(string)
	}

	// Simulate authentication failure for "test" passcode
	if passcode == "test" {
		return map[string]any{"status": "ok", "data": "badpass"}
	}
	return map[string]any{"status": "ok", "data": "ok", "project_id": m.projectID}
}

func (m *MockRenderServer) handleItems(selectedOnly bool) map[string]any {
	items := make([]Item, 0, len(m.comps))
	for i, c := range m.comps {
		if selectedOnly && !c.Selected {
			continue
		}
		items = append(items, Item{
			Name:       c.Name,
			Position:   i + 1,
			Selected:   c.Selected,
			LayerCount: len(c.Layers),
		})
	}
	return okReply(items)
}

func (m *MockRenderServer) handleComp(name string, rest []string, args []any) map[string]any {
	comp := m.findComp(name)
	if comp == nil {
		return errorReply(fmt.Sprintf("composition %q not found", name))
	}

	if len(rest) == 1 && rest[0] == "numLayers" {
		return okReply(len(comp.Layers))
	}

	if len(rest) == 1 && rest[0] == "layerByName" {
		layerName := stringArg(args, 0)
		for i, l := range comp.Layers {
			if l.Name == layerName {
				return okReply(Layer{Comp: comp.Name, Index: i + 1, Name: l.Name})
			}
		}
		return errorReply(messages.ReplyErrNotFound)
	}

	if len(rest) < 3 || rest[0] != "layer" {
		return errorReply("unsupported composition request")
	}
	index, err := strconv.Atoi(rest[1])
	if err != nil || index < 1 || index > len(comp.Layers) {
		return errorReply(fmt.Sprintf("layer %s out of range", rest[1]))
	}
	layer := comp.Layers[index-1]

	switch {
	case len(rest) == 3 && rest[2] == "text":
		if layer.Text == nil {
			return errorReply(messages.ReplyErrNoText)
		}
		return okReply(*layer.Text)
	case len(rest) == 3 && rest[2] == "effect":
		effectName := stringArg(args, 0)
		if _, ok := layer.Effects[effectName]; ok {
			return okReply(map[string]any{"name": effectName})
		}
		return errorReply(messages.ReplyErrNotFound)
	case len(rest) == 6 && rest[2] == "effect" && rest[4] == "property":
		props, ok := layer.Effects[rest[3]]
		if !ok {
			return errorReply(fmt.Sprintf("effect %q not found", rest[3]))
		}
		if len(args) > 0 {
			value, ok := args[0].(int32)
			if !ok {
				return errorReply("property value must be an int32")
			}
			props[rest[5]] = int(value)
		}
		value, ok := props[rest[5]]
		if !ok {
			return errorReply(fmt.Sprintf("property %q not found", rest[5]))
		}
		return okReply(value)
	}

	return errorReply("unsupported layer request")
}

func (m *MockRenderServer) handleQueue(op string, args []any) map[string]any {
	switch op {
	case "clear":
		m.queue = nil
		m.rendering = false
		return okReply(nil)
	case "add":
		compName, tmpl, file := stringArg(args, 0), stringArg(args, 1), stringArg(args, 2)
		if m.findComp(compName) == nil {
			return errorReply(fmt.Sprintf("composition %q not found", compName))
		}
		if !m.templates[tmpl] {
			return errorReply(fmt.Sprintf("output module template %q not found", tmpl))
		}
		if info, err := os.Stat(filepath.Dir(file)); err != nil || !info.IsDir() {
			return errorReply(fmt.Sprintf("cannot write to %s", file))
		}
		m.nextItemID++
		item := &mockQueueItem{
			ID:       fmt.Sprintf("MOCK-RQ-%d", m.nextItemID),
			Comp:     compName,
			Status:   StatusQueued,
			Template: tmpl,
			File:     file,
		}
		m.queue = append(m.queue, item)
		return okReply(item.ID)
	case "render":
		m.rendering = true
		m.pollsLeft = m.renderPolls
		return okReply(nil)
	case "items":
		m.advanceRender()
		return okReply(m.queue)
	}
	return errorReply(fmt.Sprintf("unknown render queue operation %q", op))
}

// advanceRender finishes started items once their polls are used up
func (m *MockRenderServer) advanceRender() {
	if !m.rendering {
		return
	}
	if m.pollsLeft > 0 {
		m.pollsLeft--
		return
	}
	for _, item := range m.queue {
		if item.Status != StatusQueued {
			continue
		}
		if m.failComps[item.Comp] {
			item.Status = StatusFailed
			continue
		}
		if f, err := os.Create(item.File); err == nil {
			_ = f.Close()
		}
		item.Status = StatusDone
	}
}

func okReply(data any) map[string]any {
	return map[string]any{"status": "ok", "data": data}
}

func errorReply(message string) map[string]any {
	return map[string]any{"status": "error", "error": message}
}

func stringArg(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	s, _ := args[i].(string)
	return s
}

// sendReply sends a reply message to the project's reply listener
func (m *MockRenderServer) sendReply(address string, data map[string]any) {
	replyAddress := messages.ReplyPrefix + address

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Errorf("Failed to marshal reply data: %v", err)
		return
	}

	msg := osc.NewMessage(replyAddress)
	msg.Append(string(jsonData))

	client := osc.NewClient(m.host, m.replyPort)
	log.Debugf("Mock server sending reply to %s:%d with address %s", m.host, m.replyPort, replyAddress)
	if err := client.Send(msg); err != nil {
		log.Errorf("Failed to send mock reply: %v", err)
	}
}
