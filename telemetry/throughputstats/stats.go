package throughputstats

import (
	"github.com/prernay/qpid-jms/telemetry/throughput"
)

// Digest pairs the inbound and outbound views of one connection
type Digest struct {
	Inbound  throughput.Snapshot `json:"inbound"`
	Outbound throughput.Snapshot `json:"outbound"`
}

type ThroughputStats struct {
	inbound  *throughput.Throughput
	outbound *throughput.Throughput
}

func New(unit string, done <-chan struct{}) *ThroughputStats {
	return &ThroughputStats{
		inbound:  throughput.New(unit, done),
		outbound: throughput.New(unit, done),
	}
}

func (c *ThroughputStats) Reset() {
	c.inbound.Reset()
	c.outbound.Reset()
}

func (c *ThroughputStats) CountInbound(n int) {
	c.inbound.Observe(n)
}

func (c *ThroughputStats) CountOutbound(n int) {
	c.outbound.Observe(n)
}

func (c *ThroughputStats) Digest() Digest {
	return Digest{
		Inbound:  c.inbound.Digest(),
		Outbound: c.outbound.Digest(),
	}
}
