package protocol

// LinkConfig describes optional layers stacked over a raw datagram channel.
type LinkConfig struct {
	DropEvery    int    // emulate loss of every Nth outgoing datagram
	DupEvery     int    // emulate duplication of every Nth outgoing datagram
	ReorderEvery int    // swap every Nth outgoing datagram with the one after it
	LocalVIP     string // virtual IPv4 address of this end; empty disables encapsulation
	RemoteVIP    string
}

// Wrap stacks the configured layers over ch. Loss emulation sits outermost so
// it sees exactly the datagrams the protocol sends.
func (lc LinkConfig) Wrap(ch Channel) (Channel, error) {
	if lc.LocalVIP != "" || lc.RemoteVIP != "" {
		local, err := ParseVirtualAddr(lc.LocalVIP)
		if err != nil {
			return nil, err
		}
		remote, err := ParseVirtualAddr(lc.RemoteVIP)
		if err != nil {
			return nil, err
		}
		if ch, err = NewIPv4Link(ch, local, remote); err != nil {
			return nil, err
		}
	}
	if lc.ReorderEvery > 0 {
		ch = NewReorderChannel(ch, lc.ReorderEvery)
	}
	if lc.DropEvery > 0 || lc.DupEvery > 0 {
		ch = NewLossyChannel(ch, lc.DropEvery, lc.DupEvery)
	}
	return ch, nil
}
