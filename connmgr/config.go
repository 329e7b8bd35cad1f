package connmgr

import "time"

type Config struct {
	// MaxConnections is the number of slots; at most this many connections
	// exist at once.
	MaxConnections int
	// ReceiveBufferSize is the most a single Receive reads.
	ReceiveBufferSize int
	// OverflowIncrement is the step the buffer holding an incomplete line
	// grows by.
	OverflowIncrement int
	// MaxOverflow caps that buffer. A peer sending a longer line is treated
	// as failed.
	MaxOverflow int

	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration
	SendTimeout       time.Duration
	SendRetryInterval time.Duration
	PollInterval      time.Duration
	ReadPollTimeout   time.Duration

	DNSAttempts int
	DNSRetryMin time.Duration
	DNSRetryMax time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConnections:    3,
		ReceiveBufferSize: 1500,
		OverflowIncrement: 512,
		MaxOverflow:       16 * 1024,
		ConnectTimeout:    20 * time.Second,
		HandshakeTimeout:  60 * time.Second,
		SendTimeout:       60 * time.Second,
		SendRetryInterval: 5 * time.Millisecond,
		PollInterval:      10 * time.Millisecond,
		ReadPollTimeout:   1 * time.Millisecond,
		DNSAttempts:       5,
		DNSRetryMin:       100 * time.Millisecond,
		DNSRetryMax:       1 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.ReceiveBufferSize <= 0 {
		c.ReceiveBufferSize = d.ReceiveBufferSize
	}
	if c.OverflowIncrement <= 0 {
		c.OverflowIncrement = d.OverflowIncrement
	}
	if c.MaxOverflow <= 0 {
		c.MaxOverflow = d.MaxOverflow
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.SendRetryInterval <= 0 {
		c.SendRetryInterval = d.SendRetryInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ReadPollTimeout <= 0 {
		c.ReadPollTimeout = d.ReadPollTimeout
	}
	if c.DNSAttempts <= 0 {
		c.DNSAttempts = d.DNSAttempts
	}
	if c.DNSRetryMin <= 0 {
		c.DNSRetryMin = d.DNSRetryMin
	}
	if c.DNSRetryMax <= 0 {
		c.DNSRetryMax = d.DNSRetryMax
	}
	if c.DNSRetryMax < c.DNSRetryMin {
		c.DNSRetryMax = c.DNSRetryMin
	}
	return c
}
