package protocol

import "sync/atomic"

// Stats keeps track of packet and block counters during a transfer
type Stats struct {
	packetsSent atomic.Uint64
	packetsRcvd atomic.Uint64
	bytesSent   atomic.Uint64
	bytesRcvd   atomic.Uint64
	duplicates  atomic.Uint64
	malformed   atomic.Uint64
	recovered   atomic.Uint64 // blocks repaired with parity
	lost        atomic.Uint64 // blocks declared lost
}

func (s *Stats) AddPacketSent(wireBytes uint64) {
	s.packetsSent.Add(1)
	s.bytesSent.Add(wireBytes)
}

func (s *Stats) AddPacketRcvd(wireBytes uint64) {
	s.packetsRcvd.Add(1)
	s.bytesRcvd.Add(wireBytes)
}

func (s *Stats) AddDuplicate() {
	s.duplicates.Add(1)
}

func (s *Stats) AddMalformed() {
	s.malformed.Add(1)
}

func (s *Stats) AddRecovered() {
	s.recovered.Add(1)
}

func (s *Stats) AddLost() {
	s.lost.Add(1)
}

func (s *Stats) GetPacketsSent() uint64 { return s.packetsSent.Load() }
func (s *Stats) GetPacketsRcvd() uint64 { return s.packetsRcvd.Load() }
func (s *Stats) GetBytesSent() uint64   { return s.bytesSent.Load() }
func (s *Stats) GetBytesRcvd() uint64   { return s.bytesRcvd.Load() }
func (s *Stats) GetDuplicates() uint64  { return s.duplicates.Load() }
func (s *Stats) GetMalformed() uint64   { return s.malformed.Load() }
func (s *Stats) GetRecovered() uint64   { return s.recovered.Load() }
func (s *Stats) GetLost() uint64        { return s.lost.Load() }
