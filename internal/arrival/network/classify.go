package network

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// PTP (IEEE 1588) identification constants. Identification only: the
// pipeline measures packet arrivals and never interprets PTP message
// contents.
const (
	// EtherTypePTP is the EtherType of PTP carried directly over Ethernet.
	EtherTypePTP = layers.EthernetType(0x88F7)

	// PTPEventPort is the UDP port for PTP event messages.
	PTPEventPort = layers.UDPPort(319)

	// PTPGeneralPort is the UDP port for PTP general messages.
	PTPGeneralPort = layers.UDPPort(320)
)

// IsPTP reports whether pkt carries a PTP message, either as a raw
// Ethernet PTP frame (including VLAN-tagged) or as PTP over UDP on the
// event/general port pair. These are the packets the capture hardware
// timestamps.
func IsPTP(pkt gopacket.Packet) bool {
	if eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok {
		if eth.EthernetType == EtherTypePTP {
			return true
		}
	}
	if dot1q, ok := pkt.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q); ok {
		if dot1q.Type == EtherTypePTP {
			return true
		}
	}
	if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		switch {
		case udp.SrcPort == PTPEventPort || udp.DstPort == PTPEventPort:
			return true
		case udp.SrcPort == PTPGeneralPort || udp.DstPort == PTPGeneralPort:
			return true
		}
	}
	return false
}
