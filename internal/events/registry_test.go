package events

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_DeliversInSubscriptionOrder(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		r.Subscribe(BalanceUpdated, func(any) {
			order = append(order, i)
		})
	}

	r.Emit(BalanceUpdated, nil)
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestRegistry_UnsubscribeRemovesEmptyEntry(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	unsub := r.Subscribe(BalanceUpdated, func(any) {})
	require.Equal(t, 1, r.SubscriberCount(BalanceUpdated))

	unsub()
	require.Equal(t, 0, r.SubscriberCount(BalanceUpdated))

	r.mu.Lock()
	_, exists := r.subs[BalanceUpdated]
	r.mu.Unlock()
	require.False(t, exists, "empty subscriber set must be deleted")
}

func TestRegistry_PanickingCallbackIsRemoved(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	var delivered int
	r.Subscribe(TransactionAdded, func(any) { panic("bad listener") })
	r.Subscribe(TransactionAdded, func(any) { delivered++ })

	r.Emit(TransactionAdded, nil)
	require.Equal(t, 1, delivered, "healthy listener must still receive the event")
	require.Equal(t, 1, r.SubscriberCount(TransactionAdded), "panicking listener must be removed")

	r.Emit(TransactionAdded, nil)
	require.Equal(t, 2, delivered)
}

func TestRegistry_EmitWithoutSubscribersIsNoop(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Emit("nobody:listens", 42)
}

func TestStream_ForwardsAndDropsWhenFull(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	ch, stop := r.Stream([]string{BalanceUpdated}, 2)
	defer stop()

	r.Emit(BalanceUpdated, 1)
	r.Emit(BalanceUpdated, 2)
	r.Emit(BalanceUpdated, 3) // buffer full, dropped

	require.Len(t, ch, 2)
	first := <-ch
	require.Equal(t, BalanceUpdated, first.Event)
	require.Equal(t, 1, first.Payload)
}

func TestStream_StopUnsubscribes(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	_, stop := r.Stream([]string{BalanceUpdated, TransactionAdded}, 2)
	require.Equal(t, 1, r.SubscriberCount(BalanceUpdated))
	require.Equal(t, 1, r.SubscriberCount(TransactionAdded))

	stop()
	require.Equal(t, 0, r.SubscriberCount(BalanceUpdated))
	require.Equal(t, 0, r.SubscriberCount(TransactionAdded))
}
