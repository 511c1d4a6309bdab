package handler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/chime-off/internal/generator"
)

// DefaultFlowTTL is how long an unfinished flow waits for its next
// interaction. Discord stops accepting component interactions on a message
// after 15 minutes.
const DefaultFlowTTL = 15 * time.Minute

func InstanceIDFromInteraction(i *discordgo.InteractionCreate) string {
	var customID string

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		customID = i.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		customID = i.ModalSubmitData().CustomID
	default:
		return ""
	}

	return InstanceIDFromCustomID(customID)
}

func InstanceIDFromCustomID(customID string) string {
	_, instanceID, found := strings.Cut(customID, ":")
	if !found {
		return ""
	}
	return instanceID
}

type FlowContext struct {
	InstanceID string
	State      map[string]any
}

type NodeHandler func(context.Context, DiscordSession, *discordgo.InteractionCreate, *FlowContext) error

type Node struct {
	ID      string
	Matcher func(*discordgo.InteractionCreate) bool
	Handler NodeHandler
	Next    []*Node
}

type Flow struct {
	ID   string
	Root *Node
}

type session struct {
	flow      *Flow
	node      *Node
	ctx       *FlowContext
	startedAt time.Time
}

type FlowManager struct {
	flowsMu sync.RWMutex
	flows   []*Flow

	sessionsMu sync.RWMutex
	sessions   map[string]*session

	idGenerator generator.Generator[string]
	ttl         time.Duration
	now         func() time.Time
}

func NewFlowManager(idGenerator generator.Generator[string]) *FlowManager {
	if idGenerator == nil {
		idGenerator = &generator.UUIDV4Generator{}
	}
	return &FlowManager{
		sessions:    make(map[string]*session),
		idGenerator: idGenerator,
		ttl:         DefaultFlowTTL,
		now:         time.Now,
	}
}

// RegisterFlow adds a flow. Flows are matched in registration order.
func (fm *FlowManager) RegisterFlow(flow *Flow) {
	fm.flowsMu.Lock()
	defer fm.flowsMu.Unlock()

	for _, f := range fm.flows {
		if f.ID == flow.ID {
			panic("flow already registered: " + flow.ID)
		}
	}
	fm.flows = append(fm.flows, flow)
}

// Active returns the number of unfinished flows.
func (fm *FlowManager) Active() int {
	fm.sessionsMu.RLock()
	defer fm.sessionsMu.RUnlock()
	return len(fm.sessions)
}

func (fm *FlowManager) Router(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) error {
	fm.expire()

	instanceID := InstanceIDFromInteraction(i)
	if instanceID != "" {
		fm.sessionsMu.RLock()
		sess, inFlow := fm.sessions[instanceID]
		fm.sessionsMu.RUnlock()
		if inFlow {
			return fm.advance(ctx, s, i, sess)
		}
	}

	return fm.initializeFlow(ctx, s, i)
}

func (fm *FlowManager) expire() {
	cutoff := fm.now().Add(-fm.ttl)

	fm.sessionsMu.Lock()
	defer fm.sessionsMu.Unlock()
	for id, sess := range fm.sessions {
		if sess.startedAt.Before(cutoff) {
			delete(fm.sessions, id)
		}
	}
}

func (fm *FlowManager) finish(instanceID string) {
	fm.sessionsMu.Lock()
	delete(fm.sessions, instanceID)
	fm.sessionsMu.Unlock()
}

func (fm *FlowManager) advance(
	ctx context.Context,
	s DiscordSession,
	i *discordgo.InteractionCreate,
	sess *session,
) error {
	if len(sess.node.Next) == 0 {
		fm.finish(sess.ctx.InstanceID)
		return nil
	}

	var nextNode *Node
	for _, n := range sess.node.Next {
		if n.Matcher(i) {
			nextNode = n
			break
		}
	}
	if nextNode == nil {
		return nil
	}

	sess.node = nextNode
	if err := nextNode.Handler(ctx, s, i, sess.ctx); err != nil {
		return err
	}

	if len(nextNode.Next) == 0 {
		fm.finish(sess.ctx.InstanceID)
	}
	return nil
}

func (fm *FlowManager) initializeFlow(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate) error {
	fm.flowsMu.RLock()
	var f *Flow
	for _, flow := range fm.flows {
		if flow.Root.Matcher(i) {
			f = flow
			break
		}
	}
	fm.flowsMu.RUnlock()
	if f == nil {
		return nil
	}

	instanceID, err := fm.idGenerator.Next()
	if err != nil {
		return fmt.Errorf("failed to generate instance ID: %w", err)
	}

	fc := &FlowContext{
		InstanceID: instanceID,
		State:      make(map[string]any),
	}

	// Single step flows never wait for a follow-up interaction.
	if len(f.Root.Next) > 0 {
		fm.sessionsMu.Lock()
		fm.sessions[instanceID] = &session{flow: f, node: f.Root, ctx: fc, startedAt: fm.now()}
		fm.sessionsMu.Unlock()
	}

	return f.Root.Handler(ctx, s, i, fc)
}
