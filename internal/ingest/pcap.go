package ingest

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"example.com/readinmarsat/internal/common"
)

const pcapngMagic = 0x0A0D0D0A

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// PcapFilter limits which TCP segments contribute payload. Zero matches
// any port.
type PcapFilter struct {
	Port uint16
}

func (f PcapFilter) match(tcp *layers.TCP) bool {
	if f.Port == 0 {
		return true
	}
	p := layers.TCPPort(f.Port)
	return tcp.SrcPort == p || tcp.DstPort == p
}

// ReadPCAPFile extracts TCP payloads from a pcap or pcapng file.
func ReadPCAPFile(path string, filter PcapFilter) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	return ReadPCAP(f, filter)
}

// ReadPCAP concatenates the TCP payloads of every captured packet in
// capture order. No stream reassembly is done; captures of a single LES
// download session come out in order.
func ReadPCAP(r io.Reader, filter PcapFilter) ([]byte, error) {
	br := bufio.NewReader(r)
	src, err := openCapture(br)
	if err != nil {
		return nil, err
	}
	var out []byte
	packets, segments := 0, 0
	for {
		data, _, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read packet %d: %w", packets+1, err)
		}
		packets++
		pkt := gopacket.NewPacket(data, src.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		layer := pkt.Layer(layers.LayerTypeTCP)
		if layer == nil {
			continue
		}
		tcp, ok := layer.(*layers.TCP)
		if !ok || len(tcp.Payload) == 0 || !filter.match(tcp) {
			continue
		}
		segments++
		out = append(out, tcp.Payload...)
	}
	common.Log().Debugf("capture: %d packets, %d tcp segments, %d payload bytes", packets, segments, len(out))
	if len(out) == 0 {
		return nil, ErrEmptyInput
	}
	return out, nil
}

func openCapture(br *bufio.Reader) (packetSource, error) {
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("open pcapng: %w", err)
		}
		return ng, nil
	}
	rd, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("open pcap: %w", err)
	}
	return rd, nil
}
