package types

import "fmt"

// ValueOutOfRangeError is returned when a number is outside its valid range
type ValueOutOfRangeError struct {
	Kind  string
	Value int64
	Min   int64
	Max   int64
}

func (e *ValueOutOfRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Kind, e.Value, e.Min, e.Max)
}

const (
	VolumeNumberMin = 0
	VolumeNumberMax = 65535

	MinorNumberMin = 0
	MinorNumberMax = (1 << 20) - 1

	NodeIDMin = 0
	NodeIDMax = 31

	TCPPortMin = 1
	TCPPortMax = 65535
)

func checkRange(kind string, v, lo, hi int64) error {
	if v < lo || v > hi {
		return &ValueOutOfRangeError{Kind: kind, Value: v, Min: lo, Max: hi}
	}
	return nil
}

// VolumeNumber identifies a volume definition within its resource definition
type VolumeNumber int

// NewVolumeNumber validates a volume number
func NewVolumeNumber(v int) (VolumeNumber, error) {
	return VolumeNumber(v), checkRange("volume number", int64(v), VolumeNumberMin, VolumeNumberMax)
}

// MinorNumber is the block device minor number of a volume definition
type MinorNumber int

// NewMinorNumber validates a minor number
func NewMinorNumber(v int) (MinorNumber, error) {
	return MinorNumber(v), checkRange("minor number", int64(v), MinorNumberMin, MinorNumberMax)
}

// NodeID is a resource's replica slot within its resource definition
type NodeID int

// NewNodeID validates a node ID
func NewNodeID(v int) (NodeID, error) {
	return NodeID(v), checkRange("node id", int64(v), NodeIDMin, NodeIDMax)
}

// TCPPort is a TCP port number
type TCPPort int

// NewTCPPort validates a TCP port number
func NewTCPPort(v int) (TCPPort, error) {
	return TCPPort(v), checkRange("tcp port", int64(v), TCPPortMin, TCPPortMax)
}
