package notify

import (
	"sync"
	"testing"
	"time"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeAndEmit(t *testing.T) {
	n := NewNotifier()
	events, cancel := n.Subscribe("s1")
	defer cancel()

	n.Emit("s1", Event{Type: EventStarted, TrackID: "t1"})

	ev := recvEvent(t, events)
	if ev.Type != EventStarted || ev.TrackID != "t1" {
		t.Errorf("got %+v", ev)
	}
	if ev.Timestamp == 0 {
		t.Error("timestamp not stamped")
	}
}

func TestEmitWithoutSubscriberIsDropped(t *testing.T) {
	n := NewNotifier()
	// 没有订阅者时静默丢弃，不阻塞不恐慌
	n.Emit("nobody", Event{Type: EventStarted, TrackID: "t1"})
	if got := n.SubscriberCount("nobody"); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestEmitIsScopedToSession(t *testing.T) {
	n := NewNotifier()
	a, cancelA := n.Subscribe("a")
	defer cancelA()
	b, cancelB := n.Subscribe("b")
	defer cancelB()

	n.Emit("a", Event{Type: EventStarted, TrackID: "t1"})

	ev := recvEvent(t, a)
	if ev.TrackID != "t1" {
		t.Errorf("got %+v", ev)
	}

	select {
	case ev := <-b:
		t.Errorf("session b received event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	n := NewNotifier()
	first, cancel1 := n.Subscribe("s")
	defer cancel1()
	second, cancel2 := n.Subscribe("s")
	defer cancel2()

	if got := n.SubscriberCount("s"); got != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", got)
	}

	n.Emit("s", Event{Type: EventTierFinished, TrackID: "t1", Quality: "high"})

	for _, ch := range []<-chan Event{first, second} {
		ev := recvEvent(t, ch)
		if ev.Type != EventTierFinished || ev.Quality != "high" {
			t.Errorf("got %+v", ev)
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	n := NewNotifier()
	events, cancel := n.Subscribe("s")

	cancel()
	// cancel 幂等
	cancel()

	if got := n.SubscriberCount("s"); got != 0 {
		t.Errorf("SubscriberCount after cancel = %d, want 0", got)
	}

	n.Emit("s", Event{Type: EventStarted, TrackID: "t1"})
	select {
	case ev, ok := <-events:
		if ok {
			t.Errorf("received %+v after cancel", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeDropsAllSessionSubscribers(t *testing.T) {
	n := NewNotifier()
	n.Subscribe("s")
	n.Subscribe("s")

	n.Unsubscribe("s")
	if got := n.SubscriberCount("s"); got != 0 {
		t.Errorf("SubscriberCount after Unsubscribe = %d, want 0", got)
	}
}

func TestFullChannelDropsInsteadOfBlocking(t *testing.T) {
	n := NewNotifier()
	_, cancel := n.Subscribe("s")
	defer cancel()

	// 订阅者不消费，写满缓冲后 Emit 必须立即返回
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			n.Emit("s", Event{Type: EventProgress, TrackID: "t1", Elapsed: float64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber channel")
	}
}

func TestConcurrentEmitAndCancel(t *testing.T) {
	// 进度事件发布与客户端断连取消并发进行：发送绝不能落在已关闭的通道上
	n := NewNotifier()
	const session = "stress"

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					n.Emit(session, Event{Type: EventProgress, TrackID: "t1"})
				}
			}
		}()
	}

	for i := 0; i < 5000; i++ {
		ch, cancel := n.Subscribe(session)
		if i%2 == 0 {
			select {
			case <-ch:
			default:
			}
		}
		cancel()
	}

	close(stop)
	wg.Wait()

	if got := n.SubscriberCount(session); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestCancelAfterUnsubscribeDoesNotDoubleClose(t *testing.T) {
	n := NewNotifier()
	_, cancel := n.Subscribe("s")

	// Unsubscribe 已关闭通道，之后的 cancel 不能再次关闭
	n.Unsubscribe("s")
	cancel()
	cancel()

	if got := n.SubscriberCount("s"); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}
