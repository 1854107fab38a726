package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/action"
	"github.com/HsiangNianian/AMonItor/neurosdk/internal/protocol"
	"github.com/HsiangNianian/AMonItor/neurosdk/internal/store"
	"github.com/HsiangNianian/AMonItor/neurosdk/internal/ws"
)

const defaultResultTTL = 10 * time.Minute

var (
	// ErrForceOutstanding is returned by ForceAction while an earlier forced
	// action has not been resolved.
	ErrForceOutstanding = errors.New("a forced action is already outstanding")
)

// Sender is the outbound half of a session.
type Sender interface {
	Send(env protocol.Envelope)
}

// ForceCallback is called once with the action that resolved a forced
// action round.
type ForceCallback func(ctx context.Context, a action.Action)

type Option func(*SDK)

// WithStore records execution results so redelivered requests are answered
// from the store.
func WithStore(st store.Store, ttl time.Duration) Option {
	return func(s *SDK) {
		s.store = st
		if ttl > 0 {
			s.resultTTL = ttl
		}
	}
}

func WithSessionOptions(opts ...ws.Option) Option {
	return func(s *SDK) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// SDK exposes a game's actions to the remote agent. It owns the action
// registry, the forced action slot and the websocket session.
type SDK struct {
	game        string
	session     *ws.Manager
	sender      Sender
	store       store.Store
	resultTTL   time.Duration
	sessionOpts []ws.Option

	actionsMu sync.RWMutex
	actions   map[string]action.Action

	forceMu        sync.Mutex
	forced         map[string]struct{}
	forcedCallback ForceCallback
}

func New(game, url string, opts ...Option) *SDK {
	s := newSDK(game, opts...)
	s.session = ws.NewManager(game, url, s, s.sessionOpts...)
	s.sender = s.session
	return s
}

func newSDK(game string, opts ...Option) *SDK {
	s := &SDK{
		game:      game,
		store:     store.NewMemoryStore(),
		resultTTL: defaultResultTTL,
		actions:   make(map[string]action.Action),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SDK) Game() string { return s.game }

func (s *SDK) Session() *ws.Manager { return s.session }

// Run keeps the session connected until Shutdown or ctx is done.
func (s *SDK) Run(ctx context.Context) error {
	return s.session.Run(ctx)
}

func (s *SDK) Reconnect() {
	s.session.Reconnect("")
}

func (s *SDK) Shutdown() {
	s.session.Shutdown("")
}

// RegisteredActions describes every registered action, sorted by name.
func (s *SDK) RegisteredActions() []protocol.ActionInfo {
	s.actionsMu.RLock()
	actions := make([]action.Action, 0, len(s.actions))
	for _, a := range s.actions {
		actions = append(actions, a)
	}
	s.actionsMu.RUnlock()
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name() < actions[j].Name() })

	infos := make([]protocol.ActionInfo, 0, len(actions))
	for _, a := range actions {
		info, err := describe(a)
		if err != nil {
			log.Printf("skip action with broken schema: game=%s action=%s err=%v", s.game, a.Name(), err)
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

func (s *SDK) Action(name string) (action.Action, bool) {
	s.actionsMu.RLock()
	defer s.actionsMu.RUnlock()
	a, ok := s.actions[name]
	return a, ok
}

// ForcedActions returns the names offered by the outstanding forced action,
// sorted, or nothing when no round is outstanding.
func (s *SDK) ForcedActions() []string {
	s.forceMu.Lock()
	defer s.forceMu.Unlock()
	return sortedNames(s.forced)
}

func (s *SDK) SendContext(message string, silent bool) {
	kind := "context"
	if silent {
		kind = "silent context"
	}
	log.Printf("sending %s: game=%s message=%q", kind, s.game, message)
	s.sender.Send(protocol.Context(message, silent))
}

// RegisterActions announces actions to the peer and adds them to the
// registry, replacing any action of the same name. Every schema is derived
// first; if one fails nothing is sent or registered.
func (s *SDK) RegisterActions(actions ...action.Action) error {
	if len(actions) == 0 {
		return nil
	}
	infos := make([]protocol.ActionInfo, 0, len(actions))
	for _, a := range actions {
		info, err := describe(a)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}

	log.Printf("registering actions: game=%s actions=%s", s.game, joinNames(actions))
	s.sender.Send(protocol.RegisterActions(infos))

	s.actionsMu.Lock()
	for _, a := range actions {
		s.actions[a.Name()] = a
	}
	s.actionsMu.Unlock()
	return nil
}

// UnregisterActions withdraws actions by name. Unknown names are fine.
func (s *SDK) UnregisterActions(names ...string) {
	if len(names) == 0 {
		return
	}
	log.Printf("unregistering actions: game=%s actions=%s", s.game, strings.Join(names, ", "))
	s.sender.Send(protocol.UnregisterActions(names))

	s.actionsMu.Lock()
	for _, name := range names {
		delete(s.actions, name)
	}
	s.actionsMu.Unlock()
}

// ForceAction registers actions and asks the peer to pick one of them now.
// Only one round may be outstanding; a second call is rejected with
// ErrForceOutstanding and leaves the first round untouched. The round ends
// when one of the offered actions executes successfully, at which point all
// of them are unregistered and callback (if any) is called.
func (s *SDK) ForceAction(state *string, query string, ephemeral bool, actions []action.Action, callback ForceCallback) error {
	if len(actions) == 0 {
		return nil
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Name()
	}

	s.forceMu.Lock()
	if len(s.forced) > 0 {
		outstanding := sortedNames(s.forced)
		s.forceMu.Unlock()
		log.Printf("force action rejected, already waiting on another: game=%s outstanding=%s query=%q requested=%s",
			s.game, strings.Join(outstanding, ", "), query, strings.Join(names, ", "))
		return ErrForceOutstanding
	}
	s.forced = make(map[string]struct{}, len(names))
	for _, name := range names {
		s.forced[name] = struct{}{}
	}
	s.forcedCallback = callback
	s.forceMu.Unlock()

	log.Printf("sending forced action: game=%s query=%q actions=%s", s.game, query, strings.Join(names, ", "))
	if err := s.RegisterActions(actions...); err != nil {
		s.forceMu.Lock()
		s.forced = nil
		s.forcedCallback = nil
		s.forceMu.Unlock()
		return err
	}
	s.sender.Send(protocol.ForceActions(state, query, ephemeral, names))
	return nil
}

// ProcessCommand handles one inbound envelope. Only execution requests get
// a response; other commands are ignored.
func (s *SDK) ProcessCommand(ctx context.Context, env protocol.Envelope) (*protocol.Envelope, error) {
	switch env.Command {
	case protocol.CommandAction:
		if len(env.Data) == 0 {
			return nil, nil
		}
		var req protocol.ActionPayload
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, fmt.Errorf("decode action request: %w", err)
		}
		resp := s.ProcessAction(ctx, req)
		return &resp, nil
	default:
		log.Printf("ignore unhandled command: game=%s command=%s", s.game, env.Command)
		return nil, nil
	}
}

// ProcessAction executes one request and returns the result envelope. The
// action's Process runs on its own goroutine and is not waited for; its
// error or panic is logged and never reaches the peer. Only successful
// results are recorded, so a failed request id may be retried.
func (s *SDK) ProcessAction(ctx context.Context, req protocol.ActionPayload) protocol.Envelope {
	if prev, ok, err := s.store.GetResult(ctx, req.ID); err != nil {
		log.Printf("lookup processed action failed: game=%s id=%s err=%v", s.game, req.ID, err)
	} else if ok {
		log.Printf("duplicate action request, replaying result: game=%s action=%s id=%s", s.game, req.Name, req.ID)
		return protocol.ActionResult(req.ID, prev.Success, prev.Message)
	}

	result := s.execute(ctx, req)
	if !result.Success {
		return protocol.ActionResult(req.ID, result.Success, result.Message)
	}
	if err := s.store.MarkProcessed(ctx, req.ID, result, s.resultTTL); err != nil {
		log.Printf("record action result failed: game=%s id=%s err=%v", s.game, req.ID, err)
	}
	return protocol.ActionResult(req.ID, result.Success, result.Message)
}

func (s *SDK) execute(ctx context.Context, req protocol.ActionPayload) store.Result {
	log.Printf("processing action: game=%s action=%s id=%s", s.game, req.Name, req.ID)
	a, ok := s.Action(req.Name)
	if !ok {
		return s.fail(req, fmt.Sprintf("Action '%s' not found!", req.Name))
	}

	var value any
	if !a.TakesPayload() {
		value, _ = a.Decode(nil)
	} else {
		args, present, err := req.Arguments()
		if !present {
			return s.fail(req, fmt.Sprintf("Missing data field for action '%s'!", req.Name))
		}
		if err == nil {
			value, err = a.Decode(args)
		}
		if err != nil {
			log.Printf("could not deserialize: game=%s action=%s id=%s err=%v raw=%s", s.game, req.Name, req.ID, err, req.Data)
			return s.fail(req, "Could not deserialize data!")
		}
	}

	if err := a.Validate(value); err != nil {
		return s.fail(req, err.Error())
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("action process panicked: game=%s action=%s id=%s panic=%v", s.game, req.Name, req.ID, r)
			}
		}()
		if err := a.Process(context.Background(), value); err != nil {
			log.Printf("action process failed: game=%s action=%s id=%s err=%v", s.game, req.Name, req.ID, err)
		}
	}()

	s.resolveForced(ctx, a)
	return store.Result{Success: true, Message: a.SuccessMessage(value)}
}

// resolveForced ends the outstanding forced round if a is one of its
// actions.
func (s *SDK) resolveForced(ctx context.Context, a action.Action) {
	s.forceMu.Lock()
	if _, ok := s.forced[a.Name()]; !ok {
		s.forceMu.Unlock()
		return
	}
	names := sortedNames(s.forced)
	callback := s.forcedCallback
	s.forced = nil
	s.forcedCallback = nil
	s.forceMu.Unlock()

	log.Printf("resolved forced action: game=%s action=%s", s.game, a.Name())
	s.UnregisterActions(names...)
	if callback != nil {
		callback(ctx, a)
	}
}

func (s *SDK) fail(req protocol.ActionPayload, msg string) store.Result {
	log.Printf("unsuccessful: game=%s action=%s id=%s message=%q", s.game, req.Name, req.ID, msg)
	return store.Result{Success: false, Message: msg}
}

func describe(a action.Action) (protocol.ActionInfo, error) {
	node, err := a.Schema()
	if err != nil {
		return protocol.ActionInfo{}, err
	}
	return protocol.ActionInfo{Name: a.Name(), Description: a.Description(), Schema: node}, nil
}

func joinNames(actions []action.Action) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Name()
	}
	return strings.Join(names, ", ")
}

func sortedNames(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
