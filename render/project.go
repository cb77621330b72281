package render

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
	"github.com/zenibako/roster-render/messages"
)

// Project is a connection to the render bridge running inside the
// compositing application. It implements Engine.
type Project struct {
	initialized       bool
	host              string
	port              int
	listenHost        string // Interface the reply listener binds to
	replyPort         int    // Port the bridge sends replies to (default port + 1)
	client            *osc.Client
	projectID         string
	addressBuilder    *messages.OSCAddressBuilder
	replyServer       *osc.Server           // Persistent server for bridge replies
	replyHandlers     map[string]chan []any // Handlers for reply messages
	replyHandlersMux  sync.Mutex            // Mutex to protect replyHandlers map
	serverMux         sync.Mutex            // Mutex to protect server access
	requestCounter    int                   // Counter for generating unique request IDs
	onDisconnect      func()                // Callback for when the bridge appears to be gone
	wasConnected      bool                  // Tracks if we were previously connected
	consecutiveErrors int                   // Counter for consecutive timeout errors
	maxRetries        int                   // Maximum number of retries for OSC commands (default 0)
	timeout           int                   // Timeout in seconds for OSC replies (default 10)
}

var _ Engine = (*Project)(nil)

// NewProject creates a client for the render bridge at host:port
func NewProject(host string, port int) *Project {
	return &Project{
		host:           host,
		port:           port,
		listenHost:     host,
		replyPort:      port + 1,
		client:         osc.NewClient(host, port),
		addressBuilder: messages.NewOSCAddressBuilder(""),
		replyHandlers:  make(map[string]chan []any),
		timeout:        10,
	}
}

// SetReplyPort overrides the port replies are received on
func (p *Project) SetReplyPort(port int) {
	p.replyPort = port
}

// SetListenHost overrides the interface the reply listener binds to
func (p *Project) SetListenHost(host string) {
	p.listenHost = host
}

// OnDisconnect sets a callback for when the bridge appears to be disconnected
func (p *Project) OnDisconnect(callback func()) {
	p.onDisconnect = callback
}

// SetMaxRetries sets the maximum number of retry attempts for OSC commands
func (p *Project) SetMaxRetries(retries int) {
	p.maxRetries = retries
}

// SetTimeout sets the timeout in seconds for OSC replies.
// Default is 10 seconds.
func (p *Project) SetTimeout(seconds int) {
	p.timeout = seconds
	if seconds > 10 {
		log.Infof("OSC timeout increased to %d seconds", seconds)
	}
}

// IsConnected reports whether Init succeeded
func (p *Project) IsConnected() bool {
	return p.initialized && p.projectID != ""
}

// ProjectID returns the ID of the connected project
func (p *Project) ProjectID() string {
	return p.projectID
}

// Init connects to the bridge and scopes subsequent addresses to its open project
func (p *Project) Init(passcode string) error {
	log.Debugf("Init called with passcode length: %d", len(passcode))
	connectAddr := p.addressBuilder.BuildAddress(messages.MsgConnect, nil)

	reply, err := p.request(connectAddr, passcode)
	if err != nil {
		var timeoutErr *TimeoutError
		if errors.As(err, &timeoutErr) {
			return fmt.Errorf("connection timeout - is the render bridge running and accessible at %s:%d? %w", p.host, p.port, err)
		}
		return fmt.Errorf("render bridge connection failed: %w", err)
	}

	var data string
	_ = reply.Decode(&data)
	if data == "badpass" {
		return fmt.Errorf("render bridge authentication failed - incorrect passcode")
	}
	if reply.ProjectID == "" {
		return fmt.Errorf("render bridge has no open project")
	}

	p.projectID = reply.ProjectID
	p.addressBuilder = messages.NewOSCAddressBuilder(p.projectID)
	p.initialized = true
	log.Info("Connected to render bridge", "project_id", p.projectID)
	return nil
}

// Close tells the bridge the session is over and shuts down the reply listener
func (p *Project) Close() {
	if p.initialized {
		msg := osc.NewMessage(p.addressBuilder.BuildAddress(messages.MsgDisconnect, nil))
		if err := p.client.Send(msg); err != nil {
			log.Warnf("Failed to send disconnect: %v", err)
		}
		p.initialized = false
	}

	p.serverMux.Lock()
	defer p.serverMux.Unlock()

	// go-osc can race if a server is closed while it is still binding,
	// so give it a moment before closing in the background.
	if p.replyServer != nil {
		server := p.replyServer
		p.replyServer = nil

		go func() {
			time.Sleep(100 * time.Millisecond)
			log.Debugf("Closing reply server")
			if err := server.CloseConnection(); err != nil {
				log.Warnf("Failed to close reply server: %v", err)
			}
		}()
	}

	p.replyHandlersMux.Lock()
	p.replyHandlers = make(map[string]chan []any)
	p.replyHandlersMux.Unlock()
}

func (p *Project) address(msgType messages.MessageType, params map[string]string) string {
	return p.addressBuilder.BuildAddress(msgType, params)
}

func (p *Project) listItems(msgType messages.MessageType) ([]Item, error) {
	address := p.address(msgType, nil)
	reply, err := p.request(address)
	if err != nil {
		return nil, err
	}

	var items []Item
	if reply.HasData() {
		if err := reply.Decode(&items); err != nil {
			return nil, fmt.Errorf("failed to parse items from %s: %w", address, err)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
	return items, nil
}

// FindByName returns the composition with the given name
func (p *Project) FindByName(name string) (Item, bool, error) {
	items, err := p.listItems(messages.MsgProjectItems)
	if err != nil {
		return Item{}, false, err
	}
	for _, item := range items {
		if item.Name == name {
			return item, true, nil
		}
	}
	log.Debug("Composition not found", "name", name, "items", len(items))
	return Item{}, false, nil
}

// SelectedItems returns the selected compositions in project order
func (p *Project) SelectedItems() ([]Item, error) {
	items, err := p.listItems(messages.MsgProjectSelection)
	if err != nil {
		return nil, err
	}
	selected := items[:0]
	for _, item := range items {
		if item.Selected {
			selected = append(selected, item)
		}
	}
	return selected, nil
}

// LayerCount returns the number of layers in a composition
func (p *Project) LayerCount(comp Item) (int, error) {
	reply, err := p.request(p.address(messages.MsgCompNumLayers, map[string]string{"comp": comp.Name}))
	if err != nil {
		return 0, err
	}
	var count int
	if err := reply.Decode(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// LayerText returns the source text of a layer. A "no text" reply means
// the layer has no text property.
func (p *Project) LayerText(comp Item, index int) (string, bool, error) {
	reply, err := p.request(p.address(messages.MsgCompLayerText, map[string]string{
		"comp":  comp.Name,
		"layer": strconv.Itoa(index),
	}))
	if isAbsent(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !reply.HasData() {
		return "", false, nil
	}
	var text string
	if err := reply.Decode(&text); err != nil {
		return "", false, err
	}
	return text, true, nil
}

// LayerByName finds a layer of a composition by its name
func (p *Project) LayerByName(comp Item, name string) (Layer, bool, error) {
	reply, err := p.request(p.address(messages.MsgCompLayerByName, map[string]string{"comp": comp.Name}), name)
	if isAbsent(err) {
		return Layer{}, false, nil
	}
	if err != nil {
		return Layer{}, false, err
	}
	if !reply.HasData() {
		return Layer{}, false, nil
	}
	var layer Layer
	if err := reply.Decode(&layer); err != nil {
		return Layer{}, false, err
	}
	layer.Comp = comp.Name
	return layer, true, nil
}

// EffectByName finds an effect on a layer by its name
func (p *Project) EffectByName(layer Layer, name string) (Effect, bool, error) {
	reply, err := p.request(p.address(messages.MsgLayerEffect, map[string]string{
		"comp":  layer.Comp,
		"layer": strconv.Itoa(layer.Index),
	}), name)
	if isAbsent(err) {
		return Effect{}, false, nil
	}
	if err != nil {
		return Effect{}, false, err
	}
	if !reply.HasData() {
		return Effect{}, false, nil
	}
	var effect Effect
	if err := reply.Decode(&effect); err != nil {
		return Effect{}, false, err
	}
	effect.Layer = layer
	return effect, true, nil
}

func (p *Project) effectPropertyAddress(effect Effect, property string) string {
	return p.address(messages.MsgEffectProperty, map[string]string{
		"comp":     effect.Layer.Comp,
		"layer":    strconv.Itoa(effect.Layer.Index),
		"effect":   effect.Name,
		"property": property,
	})
}

// PropertyValue reads an enumerated effect property
func (p *Project) PropertyValue(effect Effect, property string) (int, error) {
	reply, err := p.request(p.effectPropertyAddress(effect, property))
	if err != nil {
		return 0, err
	}
	var value int
	if err := reply.Decode(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// SetPropertyValue writes an enumerated effect property
func (p *Project) SetPropertyValue(effect Effect, property string, value int) error {
	_, err := p.request(p.effectPropertyAddress(effect, property), int32(value))
	return err
}

// Enqueue adds a composition to the render queue with an output template and destination file
func (p *Project) Enqueue(item Item, outputTemplate string, destination string) (JobHandle, error) {
	reply, err := p.request(p.address(messages.MsgQueueAdd, nil), item.Name, outputTemplate, destination)
	if err != nil {
		return "", err
	}
	var id string
	if err := reply.Decode(&id); err != nil {
		return "", err
	}
	log.Debug("Queued render", "comp", item.Name, "template", outputTemplate, "file", destination, "id", id)
	return JobHandle(id), nil
}

// Clear removes every item from the render queue
func (p *Project) Clear() error {
	_, err := p.request(p.address(messages.MsgQueueClear, nil))
	return err
}

// Start renders the queue
func (p *Project) Start() error {
	_, err := p.request(p.address(messages.MsgQueueRender, nil))
	return err
}

// QueueStatus returns a snapshot of the render queue
func (p *Project) QueueStatus() (QueueStatus, error) {
	reply, err := p.request(p.address(messages.MsgQueueItems, nil))
	if err != nil {
		return QueueStatus{}, err
	}
	var status QueueStatus
	if reply.HasData() {
		if err := reply.Decode(&status.Items); err != nil {
			return QueueStatus{}, err
		}
	}
	return status, nil
}
