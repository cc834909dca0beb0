package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/precision.report/internal/arrival/network"
)

var (
	outputFile   = flag.String("o", "bursts.pcap", "Output pcap file path")
	burstCount   = flag.Int("bursts", 100, "Number of bursts to generate")
	burstSize    = flag.Int("burst-size", 4, "Timestamped packets per burst")
	gapNs        = flag.Int64("gap-ns", 100, "Base gap between packets within a burst, in nanoseconds")
	jitterNs     = flag.Int64("jitter-ns", 0, "Max random extra gap within a burst, in nanoseconds")
	spacing      = flag.Duration("spacing", time.Millisecond, "Spacing between bursts")
	noiseCount   = flag.Int("noise", 0, "Non-PTP packets scattered between bursts")
	noiseMid     = flag.Bool("noise-mid-burst", false, "Inject a non-PTP packet inside every burst (provokes a protocol violation)")
	seed         = flag.Int64("seed", 0, "Random seed for jitter and noise payloads (0 = time-based)")
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	// PTP primary multicast address.
	ptpMAC   = net.HardwareAddr{0x01, 0x1B, 0x19, 0x00, 0x00, 0x00}
	noiseMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

func mustSerialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		log.Fatalf("Failed to serialize packet: %v", err)
	}
	return buf.Bytes()
}

// ptpFrame builds a raw Ethernet PTP frame. The capture pipeline classifies
// on the EtherType alone, so a zeroed message body is enough.
func ptpFrame() []byte {
	return mustSerialize(
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: ptpMAC, EthernetType: network.EtherTypePTP},
		gopacket.Payload(make([]byte, 44)),
	)
}

// noiseFrame builds an ordinary UDP packet on ports the classifier ignores.
func noiseFrame(rng *rand.Rand) []byte {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{192, 168, 10, 1},
		DstIP:    net.IP{192, 168, 10, 2},
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: 9999}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		log.Fatalf("Failed to set checksum layer: %v", err)
	}
	payload := make([]byte, rng.Intn(200)+32)
	rng.Read(payload)
	return mustSerialize(
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: noiseMAC, EthernetType: layers.EthernetTypeIPv4},
		ip,
		udp,
		gopacket.Payload(payload),
	)
}

func writePacket(w *pcapgo.Writer, ts time.Time, data []byte) {
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	if err := w.WritePacket(ci, data); err != nil {
		log.Fatalf("Failed to write packet: %v", err)
	}
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generates a synthetic pcap of PTP packet bursts with nanosecond-spaced\n")
		fmt.Fprintf(os.Stderr, "arrival timestamps, for feeding the precision daemon in replay mode.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -bursts 1000 -burst-size 4 -gap-ns 100 -o bursts.pcap\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -bursts 50 -jitter-ns 40 -noise 3 -o jittered.pcap\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -bursts 10 -noise-mid-burst -o violation.pcap\n", os.Args[0])
	}
	flag.Parse()

	if *burstSize < 2 {
		log.Fatalf("-burst-size must be at least 2, got %d", *burstSize)
	}
	if *gapNs < 0 || *jitterNs < 0 {
		log.Fatal("-gap-ns and -jitter-ns must not be negative")
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(s))

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	// Nanosecond resolution header. The default microsecond writer would
	// flatten the sub-microsecond gaps this file exists to carry.
	w := pcapgo.NewWriterNanos(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	ts := time.Now().Truncate(time.Second)
	written := 0
	for b := 0; b < *burstCount; b++ {
		for i := 0; i < *burstSize; i++ {
			if *noiseMid && i == *burstSize/2 {
				writePacket(w, ts, noiseFrame(rng))
				written++
				ts = ts.Add(time.Duration(*gapNs))
			}
			writePacket(w, ts, ptpFrame())
			written++
			if i < *burstSize-1 {
				gap := *gapNs
				if *jitterNs > 0 {
					gap += rng.Int63n(*jitterNs)
				}
				ts = ts.Add(time.Duration(gap))
			}
		}

		// Scatter noise evenly through the inter-burst gap.
		step := *spacing / time.Duration(*noiseCount+1)
		for k := 0; k < *noiseCount; k++ {
			ts = ts.Add(step)
			writePacket(w, ts, noiseFrame(rng))
			written++
		}
		ts = ts.Add(step)
	}

	log.Printf("Wrote %d packets (%d bursts of %d) to %s", written, *burstCount, *burstSize, *outputFile)
	if !*noiseMid {
		log.Printf("A clean replay should record %d differences", *burstCount*(*burstSize-1))
	}
}
