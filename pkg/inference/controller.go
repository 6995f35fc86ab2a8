// Package inference runs chat turns against the completion service, one at a time.
package inference

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/client"
	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/go-go-golems/ragchat/pkg/inference/state"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Completer is the completion endpoint. *client.Client implements it.
type Completer interface {
	Complete(ctx context.Context, req *client.CompletionRequest) (*client.CompletionResponse, error)
}

var _ Completer = (*client.Client)(nil)

// Snapshot is the read-only view handed to the presentation layer.
type Snapshot struct {
	History        []chat.Message
	Sources        []chat.Source
	ElapsedSeconds *float64
	Sending        bool
	LastError      *chat.Failure
}

type Controller struct {
	store     *session.Store
	completer Completer
	model     string
	publisher events.Publisher
	turn      *state.TurnState
}

type ControllerOption func(*Controller)

func WithModel(model string) ControllerOption {
	return func(c *Controller) {
		c.model = model
	}
}

func WithPublisher(p events.Publisher) ControllerOption {
	return func(c *Controller) {
		if p != nil {
			c.publisher = p
		}
	}
}

func NewController(store *session.Store, completer Completer, options ...ControllerOption) *Controller {
	c := &Controller{
		store:     store,
		completer: completer,
		publisher: events.NopPublisher{},
		turn:      state.NewTurnState(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *Controller) Store() *session.Store {
	return c.store
}

func (c *Controller) Model() string {
	return c.model
}

// IsSending reports whether a turn is in flight.
func (c *Controller) IsSending() bool {
	return c.turn.IsRunning()
}

// Cancel aborts the turn in flight. It returns state.ErrTurnNotRunning when idle.
func (c *Controller) Cancel() error {
	return c.turn.CancelRun()
}

// SendTurn appends content as a user message, sends the window ending with it and
// applies the reply. Blank content is a no-op returning (nil, nil). A call made while
// another turn is in flight returns state.ErrTurnInFlight without touching the session.
//
// Failures of the completion call are returned as a *chat.Failure of kind RequestFailed.
// The user message stays in the history either way.
func (c *Controller) SendTurn(ctx context.Context, content string, ragEnabled bool) (*chat.Exchange, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	exchangeID := uuid.NewString()
	if err := c.turn.StartRun(exchangeID); err != nil {
		return nil, err
	}
	defer c.turn.FinishRun()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.turn.SetCancel(cancel)

	c.store.SetLatest(session.Latest{ExchangeID: exchangeID})

	sess, err := c.store.PushUserMessage(content)
	if err != nil {
		log.Warn().Err(err).Str("exchange_id", exchangeID).Msg("user message not persisted, sending anyway")
	}

	window := chat.SelectWindow(sess, ragEnabled)

	started := events.NewEvent(events.EventTurnStarted)
	started.ExchangeID = exchangeID
	started.Count = len(window)
	c.publisher.PublishBlind(started)

	log.Debug().
		Str("exchange_id", exchangeID).
		Str("model", c.model).
		Bool("rag", ragEnabled).
		Int("window", len(window)).
		Msg("Sending turn")

	start := time.Now()
	resp, err := c.completer.Complete(ctx, &client.CompletionRequest{
		Model:    c.model,
		UseRAG:   ragEnabled,
		Messages: window,
	})
	if err == nil {
		err = validateResponse(resp)
	}
	if err != nil {
		return nil, c.fail(exchangeID, err)
	}

	reply := resp.Message
	if reply.Role == "" {
		reply.Role = chat.RoleAssistant
	}
	reply.Content = chat.NormalizeAssistantContent(reply.Content)
	if err := c.store.ApplyAssistantMessage(reply); err != nil {
		log.Warn().Err(err).Str("exchange_id", exchangeID).Msg("assistant message not persisted")
	}

	elapsed := resp.ElapsedTime
	c.store.SetLatest(session.Latest{
		ExchangeID:     exchangeID,
		Sources:        resp.Sources,
		ElapsedSeconds: &elapsed,
	})

	done := events.NewEvent(events.EventTurnCompleted)
	done.ExchangeID = exchangeID
	done.ElapsedSeconds = elapsed
	done.Count = len(resp.Sources)
	c.publisher.PublishBlind(done)

	log.Debug().
		Str("exchange_id", exchangeID).
		Float64("elapsed", elapsed).
		Dur("round_trip", time.Since(start)).
		Int("sources", len(resp.Sources)).
		Msg("Turn completed")

	return &chat.Exchange{
		ID:             exchangeID,
		RequestWindow:  window,
		Response:       reply,
		Sources:        resp.Sources,
		ElapsedSeconds: elapsed,
	}, nil
}

func validateResponse(resp *client.CompletionResponse) error {
	if resp == nil {
		return errors.New("empty completion response")
	}
	switch resp.Message.Role {
	case "", chat.RoleAssistant:
		return nil
	default:
		return errors.Errorf("completion response has role %q", resp.Message.Role)
	}
}

func (c *Controller) fail(exchangeID string, err error) error {
	msg := "Request failed"
	if detail := client.DetailOf(err); detail != "" {
		msg = detail
	}
	f := chat.NewFailure(chat.RequestFailed, msg, err)
	c.store.SetLatest(session.Latest{ExchangeID: exchangeID, Failure: f})

	e := events.NewEvent(events.EventTurnFailed)
	e.ExchangeID = exchangeID
	e.Kind = string(f.Kind)
	e.Message = f.Message
	c.publisher.PublishBlind(e)

	log.Error().Err(err).Str("exchange_id", exchangeID).Msg("Turn failed")
	return f
}

// Snapshot returns a deep copy of the state the presentation layer renders.
func (c *Controller) Snapshot() Snapshot {
	latest := c.store.Latest()
	s := Snapshot{
		History:        c.store.Visible(),
		Sources:        latest.Sources,
		ElapsedSeconds: latest.ElapsedSeconds,
		Sending:        c.turn.IsRunning(),
	}
	s = *clone.Clone(&s).(*Snapshot)
	// failures wrap transport errors, which are shared rather than copied
	s.LastError = latest.Failure
	return s
}

// PreviewWindow returns the messages the next turn would send if content were submitted.
// An empty content previews the window over the current history.
func (c *Controller) PreviewWindow(content string, ragEnabled bool) []chat.Message {
	sess := c.store.Session()
	if strings.TrimSpace(content) != "" {
		sess = sess.AppendUserMessage(content)
	}
	return chat.SelectWindow(sess, ragEnabled)
}
