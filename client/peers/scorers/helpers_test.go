package scorers_test

import "github.com/libp2p/go-libp2p-core/peer"

func peerIDFromString(s string) peer.ID {
	return peer.ID(s)
}
