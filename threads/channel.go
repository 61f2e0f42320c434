package threads

// Channel is an unbuffered rendezvous exchange of one int: a Send
// pairs with exactly one Receive, copying the value across, and both
// calls return only once the pairing has completed. Grounded 1:1 on
// original_source/code/threads/channel.cc (two locks serialize
// concurrent senders/receivers, two semaphores perform the handoff).
// Spec §9 notes the original ships two variants with opposite
// send/receive polarity; this implements only the §4.1 contract.
type Channel struct {
	name string

	lockSend *Lock
	lockRecv *Lock
	semSend  *Semaphore
	semRecv  *Semaphore

	buffer    *int
}

// NewChannel creates an unbuffered rendezvous channel.
func NewChannel(name string) *Channel {
	return &Channel{
		name:     name,
		lockSend: NewLock(name + " send lock"),
		lockRecv: NewLock(name + " recv lock"),
		semSend:  NewSemaphore(name+" send sem", 0),
		semRecv:  NewSemaphore(name+" recv sem", 0),
	}
}

// Send blocks until a matching Receive has presented a destination, then
// delivers message to it.
func (c *Channel) Send(message int) {
	c.lockSend.Acquire()
	defer c.lockSend.Release()

	c.semSend.P()
	if c.buffer == nil {
		panic("Channel.Send: no destination presented")
	}
	*c.buffer = message
	c.semRecv.V()
}

// Receive blocks until a Send has delivered a value, and returns it.
func (c *Channel) Receive() int {
	c.lockRecv.Acquire()
	defer c.lockRecv.Release()

	if c.buffer != nil {
		panic("Channel.Receive: destination already presented")
	}
	var dest int
	c.buffer = &dest
	c.semSend.V()
	c.semRecv.P()
	c.buffer = nil
	return dest
}
