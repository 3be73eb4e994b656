/*
File: reputation.go
Version: 1.0.0
Description: CIDR-based IP reputation feed. Each line of the feed file is "CIDR score";
             the most specific containing network decides the score.
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/yl2chen/cidranger"
)

type reputationEntry struct {
	network net.IPNet
	score   int
}

func (e *reputationEntry) Network() net.IPNet {
	return e.network
}

type CIDRReputation struct {
	ranger  cidranger.Ranger
	entries int
}

func LoadCIDRReputation(path string) (*CIDRReputation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reputation feed: %w", err)
	}
	defer f.Close()
	return ParseCIDRReputation(f)
}

func ParseCIDRReputation(r io.Reader) (*CIDRReputation, error) {
	rep := &CIDRReputation{ranger: cidranger.NewPCTrieRanger()}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("reputation feed line %d: want \"CIDR score\"", lineNo)
		}

		cidr := fields[0]
		if !strings.Contains(cidr, "/") {
			if ip, err := netip.ParseAddr(cidr); err == nil {
				cidr = netip.PrefixFrom(ip, ip.BitLen()).String()
			}
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("reputation feed line %d: %w", lineNo, err)
		}
		score, err := strconv.Atoi(fields[1])
		if err != nil || score < 0 || score > 100 {
			return nil, fmt.Errorf("reputation feed line %d: score must be 0-100", lineNo)
		}
		if err := rep.ranger.Insert(&reputationEntry{network: *network, score: score}); err != nil {
			return nil, fmt.Errorf("reputation feed line %d: %w", lineNo, err)
		}
		rep.entries++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rep, nil
}

func (c *CIDRReputation) Len() int {
	return c.entries
}

func (c *CIDRReputation) Score(_ context.Context, ip netip.Addr) (int, error) {
	nets, err := c.ranger.ContainingNetworks(net.IP(ip.Unmap().AsSlice()))
	if err != nil {
		return 0, err
	}
	best, bestBits := 0, -1
	for _, n := range nets {
		e, ok := n.(*reputationEntry)
		if !ok {
			continue
		}
		network := e.Network()
		if bits, _ := network.Mask.Size(); bits > bestBits {
			best, bestBits = e.score, bits
		}
	}
	return best, nil
}
