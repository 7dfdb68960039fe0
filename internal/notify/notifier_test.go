package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func newNotifier(senders []Sender, events []string) *Notifier {
	return NewNotifier(senders, events, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "telegram"}
	n := newNotifier([]Sender{s}, []string{EventMarketResolved, EventMarketDisputed})

	require.NoError(t, n.Notify(context.Background(), EventMarketResolved, "resolved", "m1 settled"))
	require.NoError(t, n.Notify(context.Background(), EventPinDegraded, "pin", "fallback"))

	assert.Equal(t, []string{"resolved"}, s.titles, "filtered events never reach senders")
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	s := &recordingSender{name: "discord"}
	n := newNotifier([]Sender{s}, nil)

	require.NoError(t, n.Notify(context.Background(), EventPinDegraded, "pin", "fallback"))
	assert.Len(t, s.titles, 1)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	s := &recordingSender{name: "telegram"}
	n := newNotifier([]Sender{s}, []string{EventMarketResolved})

	require.NoError(t, n.NotifyAll(context.Background(), "ops", "manual broadcast"))
	assert.Len(t, s.titles, 1)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &recordingSender{name: "telegram", err: errors.New("chat not found")}
	good := &recordingSender{name: "discord"}
	n := newNotifier([]Sender{bad, good}, nil)

	err := n.Notify(context.Background(), EventMarketResolved, "resolved", "m1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Len(t, good.titles, 1, "remaining senders still deliver")
}

func TestNotifyWithoutSendersIsNoop(t *testing.T) {
	n := newNotifier(nil, nil)
	require.NoError(t, n.Notify(context.Background(), EventMarketResolved, "t", "m"))
}
