package coordination

import "testing"

func TestDeliverDropsOldestWhenSubscriberBufferIsFull(t *testing.T) {
	ch := make(chan []byte, 2)
	deliver(ch, []byte("a"))
	deliver(ch, []byte("b"))
	deliver(ch, []byte("c")) // buffer full, "a" should be dropped

	first := <-ch
	second := <-ch
	if string(first) != "b" || string(second) != "c" {
		t.Fatalf("got %q, %q; want b, c (oldest dropped)", first, second)
	}
}

func TestPublishFiltersByEpisode(t *testing.T) {
	h := NewHub()
	epA := uint32(1)
	subA := &subscriber{id: "a", episodeFilter: &epA, send: make(chan []byte, 4)}
	subAll := &subscriber{id: "all", send: make(chan []byte, 4)}
	h.add(subA)
	h.add(subAll)
	defer h.remove(subA.id)
	defer h.remove(subAll.id)

	h.Publish(1, []byte("for-episode-1"))
	h.Publish(2, []byte("for-episode-2"))

	select {
	case msg := <-subA.send:
		if string(msg) != "for-episode-1" {
			t.Fatalf("filtered subscriber got %q, want for-episode-1", msg)
		}
	default:
		t.Fatal("filtered subscriber received nothing for its own episode")
	}
	select {
	case <-subA.send:
		t.Fatal("filtered subscriber should not receive events for other episodes")
	default:
	}

	count := 0
	for {
		select {
		case <-subAll.send:
			count++
		default:
			if count != 2 {
				t.Fatalf("unfiltered subscriber received %d messages, want 2", count)
			}
			return
		}
	}
}
