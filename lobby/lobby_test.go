package lobby

import (
	"sort"
	"testing"
	"time"

	"twilink-go/twi"
	"twilink-go/twisim"
)

func TestAddressForID(t *testing.T) {
	if got := AddressForID(0); got != 0x08 {
		t.Fatalf("AddressForID(0) = %#x, want 0x08", got)
	}
	if got := AddressForID(MaxAddresses - 1); got != 0x08+MaxAddresses-1 {
		t.Fatalf("AddressForID(last) = %#x", got)
	}
}

func TestNewRejectsBadPlayerCounts(t *testing.T) {
	bus := twisim.New()
	defer bus.Close()
	d := bus.AddDevice(twi.Config{})
	bus.Start()

	if _, err := New(d, 0); err != ErrBadPlayerCount {
		t.Fatalf("players=0: err = %v, want ErrBadPlayerCount", err)
	}
	if _, err := New(d, MaxAddresses+1); err != ErrBadPlayerCount {
		t.Fatalf("players=113: err = %v, want ErrBadPlayerCount", err)
	}
	if _, err := New(d, MaxAddresses); err != nil {
		t.Fatalf("players=112: err = %v, want nil", err)
	}
}

// runHandshakes launches the handshake on each driver, staggered in the given
// order, and returns the assigned identities once every device has settled.
func runHandshakes(t *testing.T, lobbies []*Lobby, order []int) []uint8 {
	t.Helper()
	ids := make([]uint8, len(lobbies))
	done := make(chan struct{}, len(lobbies))
	for _, idx := range order {
		go func(i int) {
			ids[i] = lobbies[i].Handshake()
			done <- struct{}{}
		}(idx)
		time.Sleep(5 * time.Millisecond)
	}
	for range lobbies {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("handshake never completed")
		}
	}
	return ids
}

func buildLobbies(t *testing.T, bus *twisim.Bus, players int) []*Lobby {
	t.Helper()
	lobbies := make([]*Lobby, players)
	for i := range lobbies {
		d := bus.AddDevice(twi.Config{})
		l, err := New(d, uint8(players))
		if err != nil {
			t.Fatal(err)
		}
		lobbies[i] = l
	}
	return lobbies
}

func checkDistinct(t *testing.T, ids []uint8) {
	t.Helper()
	sorted := append([]uint8(nil), ids...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	for i, id := range sorted {
		if id != uint8(i) {
			t.Fatalf("identities %v do not cover [0,%d)", ids, len(ids))
		}
	}
}

func TestHandshakeAssignsDistinctIdentities(t *testing.T) {
	const players = 4
	bus := twisim.New()
	defer bus.Close()
	lobbies := buildLobbies(t, bus, players)
	bus.Start()

	ids := runHandshakes(t, lobbies, []int{0, 1, 2, 3})
	checkDistinct(t, ids)

	// Join order maps onto the downward scan: earlier joiners take higher
	// slots.
	for i, id := range ids {
		if id != uint8(players-1-i) {
			t.Fatalf("join order %d claimed id %d, want %d", i, id, players-1-i)
		}
	}
}

func TestHandshakeSimultaneousJoin(t *testing.T) {
	// No stagger: every device starts scanning at once, so the poll answerer
	// must already be live the moment a slot is claimed.
	const players = 4
	bus := twisim.New()
	defer bus.Close()
	lobbies := buildLobbies(t, bus, players)
	bus.Start()

	ids := make([]uint8, players)
	done := make(chan struct{}, players)
	for i := range lobbies {
		go func(i int) {
			ids[i] = lobbies[i].Handshake()
			done <- struct{}{}
		}(i)
	}
	for range lobbies {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("handshake never completed")
		}
	}
	checkDistinct(t, ids)
}

func TestHandshakeOrderIndependence(t *testing.T) {
	const players = 5
	bus := twisim.New()
	defer bus.Close()
	lobbies := buildLobbies(t, bus, players)
	bus.Start()

	ids := runHandshakes(t, lobbies, []int{3, 0, 4, 2, 1})
	checkDistinct(t, ids)
}

func TestHandshakeTwoPlayers(t *testing.T) {
	bus := twisim.New()
	defer bus.Close()
	lobbies := buildLobbies(t, bus, 2)
	bus.Start()

	ids := runHandshakes(t, lobbies, []int{0, 1})
	checkDistinct(t, ids)
	if lobbies[0].Polls() != 1 {
		t.Fatalf("first claimant was polled %d times, want 1", lobbies[0].Polls())
	}
}

func TestHandshakeAlreadyComplete(t *testing.T) {
	const players = 3
	bus := twisim.New()
	defer bus.Close()
	lobbies := buildLobbies(t, bus, players)
	bus.Start()

	ids := runHandshakes(t, lobbies, []int{0, 1, 2})
	checkDistinct(t, ids)

	// A late (K+1)-th device finds every slot claimed.
	late := bus.AddDevice(twi.Config{})
	l, err := New(late, players)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan uint8, 1)
	go func() { done <- l.Handshake() }()
	select {
	case id := <-done:
		if id != Complete {
			t.Fatalf("late handshake = %d, want Complete (%d)", id, Complete)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("late handshake never returned")
	}
}
