package webrtc

const (
	// ChannelLabel names the single ordered data channel carrying chat lines.
	ChannelLabel = "chat"

	// MaxBufferedAmount is the send backpressure threshold. Sends beyond it
	// fail instead of queueing without bound behind a slow peer.
	MaxBufferedAmount = 2 * 1024 * 1024

	signalQueueSize = 64
)
