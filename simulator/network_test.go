package simulator

import "testing"

func TestRandomNetworkLatency(t *testing.T) {
	loop := NewEventLoopSeed(7)
	nodes := NewNodes(2)
	src, dst := nodes[0].Port(loop), nodes[1].Port(loop)
	network := RandomNetwork{MaxLatency: 0.25}

	loop.Go(func(h *Handle) {
		for i := 0; i < 20; i++ {
			network.Send(h, &Message{Source: src, Dest: dst, Message: i, Size: 8})
		}
	})
	loop.Go(func(h *Handle) {
		seen := map[int]bool{}
		for i := 0; i < 20; i++ {
			seen[dst.Recv(h).Message.(int)] = true
		}
		if len(seen) != 20 {
			t.Errorf("expected 20 distinct messages but got %d", len(seen))
		}
	})

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
	if loop.Time() > 0.25 {
		t.Errorf("latency bound exceeded: %f", loop.Time())
	}
}

func TestOrderedNetworkFIFO(t *testing.T) {
	loop := NewEventLoopSeed(3)
	nodes := NewNodes(2)
	src, dst := nodes[0].Port(loop), nodes[1].Port(loop)
	network := NewOrderedNetwork(8.0, 0.5)

	loop.Go(func(h *Handle) {
		for i := 0; i < 50; i++ {
			network.Send(h, &Message{Source: src, Dest: dst, Message: i, Size: 8})
		}
	})
	loop.Go(func(h *Handle) {
		for i := 0; i < 50; i++ {
			if val := dst.Recv(h).Message.(int); val != i {
				t.Errorf("message %d arrived out of order (got %d)", i, val)
				return
			}
		}
	})

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}
}

func TestOrderedNetworkDown(t *testing.T) {
	loop := NewEventLoop()
	nodes := NewNodes(2)
	src, dst := nodes[0].Port(loop), nodes[1].Port(loop)
	network := NewOrderedNetwork(1.0, 0)

	loop.Go(func(h *Handle) {
		network.Send(h, &Message{Source: src, Dest: dst, Message: "lost", Size: 10})
		network.SetDown(h, nodes[1], true)
		if !network.IsDown(nodes[1]) {
			t.Error("node should be down")
		}
		network.Send(h, &Message{Source: src, Dest: dst, Message: "dropped", Size: 1})
	})
	loop.Go(func(h *Handle) {
		dst.Recv(h)
	})

	if err := loop.Run(); err != ErrDeadlock {
		t.Errorf("expected deadlock but got %v", err)
	}
}
